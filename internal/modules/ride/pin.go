package ride

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	pinMin = 1000
	pinMax = 9999
)

// PinGenerator issues the start PIN for an accepted request.
type PinGenerator func() (string, error)

// RandomPin draws uniformly from 1000-9999. PINs only need to be unique within
// one pairing, so collisions across requests are fine.
func RandomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinMax-pinMin+1))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return strconv.FormatInt(n.Int64()+pinMin, 10), nil
}
