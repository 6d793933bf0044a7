// Package otp genera códigos numéricos de un solo uso para verificación
// por email (flujo de restablecimiento de contraseña).
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Digits es la longitud estándar de los códigos.
const Digits = 6

// Generate produce un código numérico de n dígitos usando crypto/rand.
// Conserva los ceros a la izquierda ("042317" es válido).
func Generate(n int) (string, error) {
	if n <= 0 {
		n = Digits
	}
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
