package terminal

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// User is one enrolled entry of the terminal's user directory.
// Wire form: deviceUserId \t name \t cardNumber \t fingerprintCount \t privilege
type User struct {
	DeviceUserID     string `json:"deviceUserId"`
	Name             string `json:"name"`
	CardNumber       string `json:"cardNumber,omitempty"`
	FingerprintCount int    `json:"fingerprintCount"`
	Privilege        int    `json:"privilege"`
}

// maxUserLine bounds one directory record; longer lines are corrupt
const maxUserLine = 512

// ParseUsers decodes a USERTEMP_RRQ payload and reports how many non-blank
// lines it had to drop. Lines without an id are skipped; malformed counters
// read as zero.
func ParseUsers(payload []byte) (users []User, skipped int) {
	for i, line := range bytes.Split(payload, []byte("\n")) {
		lineNo := i + 1
		text := strings.TrimRight(string(line), "\r")
		if len(text) > maxUserLine {
			log.Printf("⚠️ user directory line %d: dropped %d-byte record", lineNo, len(text))
			skipped++
			continue
		}
		fields := strings.Split(text, "\t")
		id := strings.TrimSpace(fields[0])
		if id == "" {
			if strings.TrimSpace(text) != "" {
				log.Printf("⚠️ user directory line %d: missing user id", lineNo)
				skipped++
			}
			continue
		}

		u := User{DeviceUserID: id}
		if len(fields) > 1 {
			u.Name = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			u.CardNumber = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 {
			u.FingerprintCount = atoiOrZero(fields[3], lineNo)
		}
		if len(fields) > 4 {
			u.Privilege = atoiOrZero(fields[4], lineNo)
		}
		users = append(users, u)
	}
	return users, skipped
}

// Line renders the user in wire form, without the trailing newline
func (u User) Line() string {
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%d", u.DeviceUserID, u.Name, u.CardNumber, u.FingerprintCount, u.Privilege)
}

// EncodeUsers renders a USERTEMP_RRQ payload
func EncodeUsers(users []User) []byte {
	var b bytes.Buffer
	for _, u := range users {
		b.WriteString(u.Line())
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func atoiOrZero(s string, lineNo int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("⚠️ user directory line %d: bad counter %q", lineNo, s)
		return 0
	}
	return n
}
