package nmea

import (
	"fmt"
	"strings"
)

// Checksum is the XOR of every byte between '$' and '*'.
func Checksum(body string) byte {
	ck := byte(0)
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return ck
}

// Command frames body as a sentence ready to be written to a receiver:
// "$" + body + "*" + checksum + CRLF. A leading '$' in body is tolerated.
func Command(body string) string {
	body = strings.TrimPrefix(strings.TrimSpace(body), "$")
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}
