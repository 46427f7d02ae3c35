package utils

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// StableIndex maps seed onto [0, n) the same way on every run.
func StableIndex(seed string, n int) int {
	if n <= 0 {
		return 0
	}
	hash := md5.Sum([]byte(seed))
	return int(binary.BigEndian.Uint32(hash[:4]) % uint32(n))
}
