package websocket

import "github.com/DimaCrafter/photonyx/core/http"

const supportedVersion = "13"

// Handshake validates an upgrade request against the endpoint table. On
// success it returns the endpoint index and the 101 response to send;
// otherwise ok is false and res is the error response.
func Handshake(endpoints *Endpoints, req *http.Request) (index int, res *http.Response, ok bool) {
	index, found := endpoints.Lookup(req.Path)
	if !found {
		return -1, http.FromText(http.StatusNotFound, "WebSocket endpoint not found"), false
	}

	key, hasKey := req.Headers.Lookup("sec-websocket-key")
	if !hasKey || key == "" {
		return -1, http.FromText(http.StatusBadRequest, "Missing Sec-WebSocket-Key"), false
	}
	if req.Headers.Get("sec-websocket-version") != supportedVersion {
		res := http.FromText(http.StatusBadRequest, "Unsupported WebSocket version")
		res.Headers.Set("Sec-WebSocket-Version", supportedVersion)
		return -1, res, false
	}

	res = &http.Response{Status: http.StatusSwitchingProtocols, Kind: http.PayloadUpgrade}
	res.Headers.Set("Upgrade", "websocket")
	res.Headers.Set("Connection", "Upgrade")
	res.Headers.Set("Sec-WebSocket-Accept", computeAcceptKey(key))
	return index, res, true
}
