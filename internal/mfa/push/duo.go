package push

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DuoConfig configura el cliente del Auth API de Duo.
type DuoConfig struct {
	Host           string // ej: api-xxxxxxxx.duosecurity.com
	IntegrationKey string
	SecretKey      string
	Timeout        time.Duration
}

// Duo implementa Provider contra el Auth API v2 de Duo Security.
type Duo struct {
	cfg  DuoConfig
	http *http.Client
}

// NewDuo crea el cliente. Timeout default: 10s.
func NewDuo(cfg DuoConfig) *Duo {
	t := cfg.Timeout
	if t <= 0 {
		t = 10 * time.Second
	}
	return &Duo{
		cfg:  cfg,
		http: &http.Client{Timeout: t},
	}
}

// duoResponse es el sobre estándar del Auth API.
type duoResponse struct {
	Stat     string `json:"stat"`
	Response struct {
		TxID   string `json:"txid"`
		Result string `json:"result"`
		Status string `json:"status"`
	} `json:"response"`
	Message string `json:"message"`
}

func (d *Duo) Dispatch(ctx context.Context, handle string) (string, error) {
	params := url.Values{}
	params.Set("username", handle)
	params.Set("factor", "push")
	params.Set("device", "auto")
	params.Set("async", "1")

	var out duoResponse
	if err := d.call(ctx, http.MethodPost, "/auth/v2/auth", params, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out.Stat != "OK" || out.Response.TxID == "" {
		return "", fmt.Errorf("%w: stat=%s msg=%s", ErrUnavailable, out.Stat, out.Message)
	}
	return out.Response.TxID, nil
}

func (d *Duo) Status(ctx context.Context, txID string) (Outcome, error) {
	params := url.Values{}
	params.Set("txid", txID)

	var out duoResponse
	if err := d.call(ctx, http.MethodGet, "/auth/v2/auth_status", params, &out); err != nil {
		return OutcomePending, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch out.Response.Result {
	case "allow":
		return OutcomeAllow, nil
	case "deny":
		return OutcomeDeny, nil
	default:
		// "waiting" o desconocido: seguimos esperando
		return OutcomePending, nil
	}
}

func (d *Duo) VerifyPasscode(ctx context.Context, handle, code string) (bool, error) {
	params := url.Values{}
	params.Set("username", handle)
	params.Set("factor", "passcode")
	params.Set("passcode", code)

	var out duoResponse
	if err := d.call(ctx, http.MethodPost, "/auth/v2/auth", params, &out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.Response.Result == "allow", nil
}

// call firma y ejecuta una llamada al Auth API.
func (d *Duo) call(ctx context.Context, method, path string, params url.Values, out *duoResponse) error {
	date := time.Now().UTC().Format(time.RFC1123Z)
	sig := d.sign(date, method, path, params)

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method,
			"https://"+d.cfg.Host+path, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method,
			"https://"+d.cfg.Host+path+"?"+params.Encode(), nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Date", date)
	req.SetBasicAuth(d.cfg.IntegrationKey, sig)

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("duo http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// sign construye la firma HMAC-SHA512 del canon requerido por Duo:
// fecha, método, host, path y query ordenada, unidos por '\n'.
func (d *Duo) sign(date, method, path string, params url.Values) string {
	canon := strings.Join([]string{
		date,
		strings.ToUpper(method),
		strings.ToLower(d.cfg.Host),
		path,
		params.Encode(), // url.Values.Encode ordena por clave
	}, "\n")

	mac := hmac.New(sha512.New, []byte(d.cfg.SecretKey))
	mac.Write([]byte(canon))
	return hex.EncodeToString(mac.Sum(nil))
}
