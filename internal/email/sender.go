// Package email envía correos transaccionales (códigos de verificación
// para el restablecimiento de contraseña).
package email

// Sender es el contrato mínimo de envío.
type Sender interface {
	// Send envía un correo con cuerpo HTML y/o texto plano.
	Send(to, subject, htmlBody, textBody string) error
}

// SMTPConfig contiene la configuración para conectarse a un servidor SMTP.
type SMTPConfig struct {
	Host      string
	Port      int    // default 587
	Username  string
	Password  string
	FromEmail string
	TLSMode   string // "auto" | "starttls" | "ssl" | "none"
}
