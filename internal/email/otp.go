package email

import (
	"fmt"
	"time"
)

// SendResetOTP envía el código de restablecimiento de contraseña.
func SendResetOTP(s Sender, to, code string, ttl time.Duration) error {
	subject := "CampusKey: código de restablecimiento de contraseña"

	text := fmt.Sprintf(
		"Su código de verificación es: %s\n\n"+
			"El código vence en %d minutos. Si usted no solicitó restablecer "+
			"su contraseña, ignore este correo.\n",
		code, int(ttl.Minutes()),
	)

	html := fmt.Sprintf(
		`<p>Su código de verificación es:</p>`+
			`<p style="font-size:28px;font-weight:bold;letter-spacing:4px">%s</p>`+
			`<p>El código vence en %d minutos. Si usted no solicitó restablecer `+
			`su contraseña, ignore este correo.</p>`,
		code, int(ttl.Minutes()),
	)

	return s.Send(to, subject, html, text)
}
