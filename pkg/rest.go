package portalboxd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/portalbox/portalboxd/pkg/conductor"
	"github.com/portalbox/portalboxd/pkg/version"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

const scanRequestTimeout = 60 * time.Second

// units whose journals may be tailed over the websocket API.
var journalUnits = map[string]string{
	"network-manager": "NetworkManager.service",
	"wpa-supplicant":  "wpa_supplicant.service",
	"portalboxd":      "portalboxd.service",
}

func RESTAPI(config ServerConfig, pbx Portalboxd, ws WSRelay) conductor.Service {
	a := api{
		mux:    http.NewServeMux(),
		config: config,
		pbx:    pbx,
		ws:     ws,
		token:  newAdminToken(),
	}

	routes := map[string]http.HandlerFunc{
		"GET /{$}":                   a.getUsage,
		"GET /bootstrap":             a.getBootstrap,
		"GET /check-connectivity":    a.getConnectivity,
		"GET /list-connections":      a.getConnections,
		"GET /list-wifi-networks":    a.getWiFiNetworks,
		"GET /scan":                  a.getScan,
		"GET /interfaces":            a.getInterfaces,
		"POST /stop":                 a.withToken(a.postStop),
		"POST /system/host/reboot":   a.withToken(a.hostReboot),
		"POST /system/host/shutdown": a.withToken(a.hostShutdown),
		"/ws/state":                  a.getUpdateSocket,
		"/ws/log/{unit}":             a.getLogSocket,
	}

	for p, h := range routes {
		a.mux.HandleFunc(p, h)
	}
	log.Infof("loaded %d API routes", len(routes))
	log.Infof("admin token: %s", a.token)

	return a
}

type api struct {
	mux    *http.ServeMux
	config ServerConfig
	pbx    Portalboxd
	ws     WSRelay
	token  string
}

// newAdminToken mints the per-process credential that gates destructive
// routes. It is printed to the log at startup; there is no user database.
func newAdminToken() string {
	raw := securecookie.GenerateRandomKey(32)
	token := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(token, raw)
	return string(token)
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func (t api) withToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) != t.token {
			sendErrorResponse(w, http.StatusUnauthorized, errors.New("missing or invalid admin token"))
			return
		}
		next(w, r)
	}
}

func (t api) getUsage(w http.ResponseWriter, r *http.Request) {
	sendResponse(w, map[string]any{
		"service": "portalboxd",
		"routes": []string{
			"GET /bootstrap",
			"GET /check-connectivity",
			"GET /list-connections",
			"GET /list-wifi-networks",
			"GET /scan?interface=<name>",
			"GET /interfaces",
			"POST /stop",
			"POST /system/host/reboot",
			"POST /system/host/shutdown",
			"GET /ws/state",
			"GET /ws/log/{unit}",
		},
	})
}

func (t api) getBootstrap(w http.ResponseWriter, r *http.Request) {
	sendResponse(w, map[string]any{
		"version": version.GetRelease(),
		"portal": map[string]any{
			"ssid":      t.config.SSID,
			"gateway":   t.config.Gateway,
			"interface": t.config.Interface,
		},
		"host": t.pbx.Host.GetHostFacts(),
	})
}

func (t api) getConnectivity(w http.ResponseWriter, r *http.Request) {
	c, err := t.pbx.NetworkManager.CheckConnectivity()
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, c)
}

func (t api) getConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := t.pbx.NetworkManager.ListConnections()
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, conns)
}

func (t api) getWiFiNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := t.pbx.NetworkManager.ListWiFiNetworks()
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, networks)
}

func (t api) getScan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), scanRequestTimeout)
	defer cancel()

	stations, err := t.pbx.Scan(ctx, r.URL.Query().Get("interface"))
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, stations)
}

func (t api) getInterfaces(w http.ResponseWriter, r *http.Request) {
	ifis, err := t.pbx.Scanner.Interfaces()
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, ifis)
}

func (t api) postStop(w http.ResponseWriter, r *http.Request) {
	if err := t.pbx.NetworkManager.DeactivatePortal(); err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, map[string]bool{"success": true})
}

func (t api) hostReboot(w http.ResponseWriter, r *http.Request) {
	if err := t.pbx.Lifecycle.Reboot(); err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, map[string]bool{"success": true})
}

func (t api) hostShutdown(w http.ResponseWriter, r *http.Request) {
	if err := t.pbx.Lifecycle.Shutdown(); err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, err)
		return
	}
	sendResponse(w, map[string]bool{"success": true})
}

func (t api) getUpdateSocket(w http.ResponseWriter, r *http.Request) {
	t.ws.GetWSHandler(WS_DEFAULT_CHANNEL, func() any {
		return Change{ID: "internal", Type: "bootstrap", Update: map[string]any{
			"ssid":    t.config.SSID,
			"gateway": t.config.Gateway,
		}}
	}).ServeHTTP(w, r)
}

func (t api) getLogSocket(w http.ResponseWriter, r *http.Request) {
	unit, ok := journalUnits[r.PathValue("unit")]
	if !ok {
		sendErrorResponse(w, http.StatusNotFound, fmt.Errorf("no such log unit %q", r.PathValue("unit")))
		return
	}

	cancel, logChan, err := t.pbx.GetLogChannel(unit)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, fmt.Errorf("establish log channel: %w", err))
		return
	}
	t.ws.GetWSChannelHandler(fmt.Sprintf("%s-log", unit), logChan, cancel).ServeHTTP(w, r)
}

func (t api) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		handler := cors.AllowAll().Handler(t.mux)
		srv := &http.Server{Addr: fmt.Sprintf("%s:%d", t.config.Bind, t.config.Port), Handler: handler}
		go func() {
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				log.WithError(err).Fatal("HTTP server ListenAndServe")
			}
		}()

		started <- true
		ctx := <-stop
		srv.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

// Helpers
func sendResponse(w http.ResponseWriter, payload any) {
	// note: w.Header after this, so we can still send an error
	b, err := json.Marshal(payload)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, fmt.Errorf("in json.Marshal: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store") // do not cache (Browsers cache GET forever by default)
	w.Write(b)
}

// sendErrorResponse renders the whole cause chain, outermost first, so a
// client sees both the step that failed and the underlying reason.
func sendErrorResponse(w http.ResponseWriter, code int, err error) {
	log.Errorf("[!] %d: %s", code, err)
	payload, merr := json.Marshal(map[string][]string{"errors": errorChain(err)})
	if merr != nil {
		payload = []byte(`{"errors":["error encoding failed"]}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(payload)
}

func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
