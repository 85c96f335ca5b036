package terminal

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DeviceInfo is the metadata a terminal reports for GET_DEVICE_INFO.
// The payload is a list of key=value lines; unknown keys land in Extra.
type DeviceInfo struct {
	SerialNumber     string            `json:"serialNumber,omitempty"`
	Firmware         string            `json:"firmware,omitempty"`
	Platform         string            `json:"platform,omitempty"`
	DeviceName       string            `json:"deviceName,omitempty"`
	UserCount        int               `json:"userCount"`
	FingerprintCount int               `json:"fingerprintCount"`
	LogCount         int               `json:"logCount"`
	DeviceTime       string            `json:"deviceTime,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// ParseDeviceInfo decodes a GET_DEVICE_INFO payload
func ParseDeviceInfo(payload []byte) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	for _, raw := range bytes.Split(payload, []byte("\n")) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "serialNumber":
			info.SerialNumber = value
		case "firmware":
			info.Firmware = value
		case "platform":
			info.Platform = value
		case "deviceName":
			info.DeviceName = value
		case "userCount":
			info.UserCount, err = strconv.Atoi(value)
		case "fingerprintCount":
			info.FingerprintCount, err = strconv.Atoi(value)
		case "logCount":
			info.LogCount, err = strconv.Atoi(value)
		case "deviceTime":
			info.DeviceTime = value
		default:
			if info.Extra == nil {
				info.Extra = make(map[string]string)
			}
			info.Extra[key] = value
		}
		if err != nil {
			return nil, fmt.Errorf("device info %s: %w", key, err)
		}
	}
	return info, nil
}

// Encode renders the info in wire form
func (d *DeviceInfo) Encode() []byte {
	var b bytes.Buffer
	writeKV := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s=%s\n", k, v)
		}
	}
	writeKV("serialNumber", d.SerialNumber)
	writeKV("firmware", d.Firmware)
	writeKV("platform", d.Platform)
	writeKV("deviceName", d.DeviceName)
	writeKV("userCount", strconv.Itoa(d.UserCount))
	writeKV("fingerprintCount", strconv.Itoa(d.FingerprintCount))
	writeKV("logCount", strconv.Itoa(d.LogCount))
	writeKV("deviceTime", d.DeviceTime)

	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeKV(k, d.Extra[k])
	}
	return b.Bytes()
}

// Map converts the info into the JSON shape cached in device settings
func (d *DeviceInfo) Map() map[string]interface{} {
	m := map[string]interface{}{
		"serialNumber":     d.SerialNumber,
		"firmware":         d.Firmware,
		"platform":         d.Platform,
		"deviceName":       d.DeviceName,
		"userCount":        d.UserCount,
		"fingerprintCount": d.FingerprintCount,
		"logCount":         d.LogCount,
		"deviceTime":       d.DeviceTime,
	}
	for k, v := range d.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}
