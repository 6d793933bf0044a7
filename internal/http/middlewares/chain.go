package middlewares

import "net/http"

// Middleware es un decorador de http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain aplica middlewares en orden de izquierda a derecha:
// Chain(h, A, B, C) ejecuta A -> B -> C -> h. El router arma con esto las
// cadenas pública y autenticada; el orden importa (RequestID antes que
// Logging, Logging antes que RequireAuth).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	// Orden inverso: el primero de la lista queda como el más externo.
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ChainFunc encadena middlewares a un http.HandlerFunc.
func ChainFunc(hf http.HandlerFunc, mws ...Middleware) http.Handler {
	return Chain(hf, mws...)
}
