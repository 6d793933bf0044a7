// campuskeyctl es el cliente de línea de comandos del servicio: login con
// espera del segundo factor, rotación de tokens y carga masiva de
// asignaciones.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func printJSON(b []byte) {
	var v any
	if json.Unmarshal(b, &v) == nil {
		p, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(p))
		return
	}
	fmt.Println(string(b))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// pollMFA espera la aprobación del push consultando el endpoint de
// verificación. Ctrl-C o el timeout cortan la espera vía contexto.
func pollMFA(ctx context.Context, cl *client, path, mfaID string, every time.Duration) ([]byte, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		status, body, err := cl.do(ctx, http.MethodPost, path, map[string]string{"mfa_id": mfaID})
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("status=%d body=%s", status, string(body))
		}

		var st struct {
			MFAVerified bool `json:"mfa_verified"`
		}
		if err := json.Unmarshal(body, &st); err != nil {
			return nil, err
		}
		if st.MFAVerified {
			return body, nil
		}

		fmt.Fprintln(os.Stderr, "esperando aprobación...")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func main() {
	var (
		baseURL = envOr("CAMPUSKEY_URL", "http://localhost:8080")
		token   = envOr("CAMPUSKEY_TOKEN", "")
	)

	cl := &client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}

	root := &cobra.Command{
		Use:   "campuskeyctl",
		Short: "Cliente CLI de CampusKey",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.BaseURL = baseURL
			cl.Token = token
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env CAMPUSKEY_URL)")
	root.PersistentFlags().StringVar(&token, "token", token, "access token (env CAMPUSKEY_TOKEN)")

	// ── login ────────────────────────────────────────────────────────
	var loginEmail, loginPassword, loginOTP string
	var loginWait time.Duration
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Login por credenciales; espera el segundo factor si el rol lo exige",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loginEmail == "" || loginPassword == "" {
				return fmt.Errorf("--email y --password son requeridos")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			status, body, err := cl.do(ctx, http.MethodPost, "/auth/login", map[string]string{
				"email":    loginEmail,
				"password": loginPassword,
			})
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("login falló: status=%d body=%s", status, string(body))
			}

			var res struct {
				MFARequired bool   `json:"mfa_required"`
				MFAID       string `json:"mfa_id"`
				PushSent    bool   `json:"push_sent"`
				Message     string `json:"message"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return err
			}
			if !res.MFARequired {
				printJSON(body)
				return nil
			}

			fmt.Fprintln(os.Stderr, res.Message)

			// Con --otp se valida el passcode directo; si no, se espera
			// la aprobación del push hasta --wait.
			waitCtx, cancel := context.WithTimeout(ctx, loginWait)
			defer cancel()

			if loginOTP != "" {
				status, body, err = cl.do(waitCtx, http.MethodPost, "/auth/mfa/verify", map[string]string{
					"mfa_id": res.MFAID,
					"otp":    loginOTP,
				})
				if err != nil {
					return err
				}
				if status != http.StatusOK {
					return fmt.Errorf("verificación falló: status=%d body=%s", status, string(body))
				}
				printJSON(body)
				return nil
			}

			final, err := pollMFA(waitCtx, cl, "/auth/mfa/verify", res.MFAID, 2*time.Second)
			if err != nil {
				return fmt.Errorf("esperando aprobación: %w", err)
			}
			printJSON(final)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email del usuario")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "contraseña")
	loginCmd.Flags().StringVar(&loginOTP, "otp", "", "passcode del autenticador (omite el poll)")
	loginCmd.Flags().DurationVar(&loginWait, "wait", 2*time.Minute, "cuánto esperar la aprobación del push")

	// ── refresh ──────────────────────────────────────────────────────
	var refreshToken string
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rota un refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshToken == "" {
				return fmt.Errorf("--refresh-token es requerido")
			}
			status, body, err := cl.do(cmd.Context(), http.MethodPost, "/auth/refresh", map[string]string{
				"refresh_token": refreshToken,
			})
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("refresh falló: status=%d body=%s", status, string(body))
			}
			printJSON(body)
			return nil
		},
	}
	refreshCmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token vigente")

	// ── assignments bulk ─────────────────────────────────────────────
	var bulkFile, bulkAction string
	var bulkWait time.Duration
	var bulkOTP string
	bulkCmd := &cobra.Command{
		Use:   "assignments-bulk",
		Short: "Carga masiva de asignaciones con verificación step-up",
		Long: "Inicia una sesión step-up, espera su aprobación (push u --otp) y " +
			"envía el lote de asignaciones leído del archivo JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cl.Token == "" {
				return fmt.Errorf("falta access token (--token o env CAMPUSKEY_TOKEN)")
			}
			if bulkFile == "" {
				return fmt.Errorf("--file es requerido")
			}
			raw, err := os.ReadFile(bulkFile)
			if err != nil {
				return err
			}
			var items []map[string]string
			if err := json.Unmarshal(raw, &items); err != nil {
				return fmt.Errorf("parse %s: %w", bulkFile, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Paso 1: iniciar la sesión step-up.
			status, body, err := cl.do(ctx, http.MethodPost, "/auth/action-mfa/initiate", map[string]string{
				"action": bulkAction,
			})
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("initiate falló: status=%d body=%s", status, string(body))
			}
			var ini struct {
				MFAID    string `json:"mfa_id"`
				PushSent bool   `json:"push_sent"`
				Message  string `json:"message"`
			}
			if err := json.Unmarshal(body, &ini); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, ini.Message)

			// Paso 2: aprobar (passcode directo o poll del push).
			waitCtx, cancel := context.WithTimeout(ctx, bulkWait)
			defer cancel()

			if bulkOTP != "" {
				status, body, err = cl.do(waitCtx, http.MethodPost, "/auth/action-mfa/verify", map[string]string{
					"mfa_id": ini.MFAID,
					"otp":    bulkOTP,
				})
				if err != nil {
					return err
				}
				if status != http.StatusOK {
					return fmt.Errorf("verificación falló: status=%d body=%s", status, string(body))
				}
			} else {
				if _, err := pollStepUp(waitCtx, cl, ini.MFAID, 2*time.Second); err != nil {
					return fmt.Errorf("esperando aprobación: %w", err)
				}
			}

			// Paso 3: enviar el lote con la sesión aprobada.
			status, body, err = cl.do(ctx, http.MethodPost, "/admin/assignments/bulk", map[string]any{
				"mfa_id":      ini.MFAID,
				"assignments": items,
			})
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("carga falló: status=%d body=%s", status, string(body))
			}
			printJSON(body)
			return nil
		},
	}
	bulkCmd.Flags().StringVar(&bulkFile, "file", "", "archivo JSON con el lote [{faculty_id, department_id}, ...]")
	bulkCmd.Flags().StringVar(&bulkAction, "action", "bulk_assignments", "nombre de la acción protegida")
	bulkCmd.Flags().StringVar(&bulkOTP, "otp", "", "passcode del autenticador (omite el poll)")
	bulkCmd.Flags().DurationVar(&bulkWait, "wait", 2*time.Minute, "cuánto esperar la aprobación")

	root.AddCommand(loginCmd, refreshCmd, bulkCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// pollStepUp consulta el estado de la sesión de acción hasta que apruebe.
func pollStepUp(ctx context.Context, cl *client, mfaID string, every time.Duration) ([]byte, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		status, body, err := cl.do(ctx, http.MethodGet, "/auth/action-mfa/check?mfa_id="+mfaID, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("status=%d body=%s", status, string(body))
		}

		var st struct {
			MFAVerified bool `json:"mfa_verified"`
			Expired     bool `json:"expired"`
		}
		if err := json.Unmarshal(body, &st); err != nil {
			return nil, err
		}
		if st.MFAVerified {
			return body, nil
		}
		if st.Expired {
			return nil, fmt.Errorf("la sesión expiró sin aprobación")
		}

		fmt.Fprintln(os.Stderr, "esperando aprobación...")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
