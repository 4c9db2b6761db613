package services

import (
	"crypto/rand"
	"math/big"
)

const rememberTokenLength = 60

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(alphanumeric)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = alphanumeric[idx.Int64()]
	}
	return string(buf), nil
}
