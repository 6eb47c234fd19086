package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/andy6609/linechat/internal/wire"
)

type Route int

const (
	RouteUnknown Route = iota
	RouteConnect
	RouteSendPrivate
	RouteSendAll
	RouteStatus
)

func (r Route) String() string {
	switch r {
	case RouteConnect:
		return "connect"
	case RouteSendPrivate:
		return "send-private"
	case RouteSendAll:
		return "send-all"
	case RouteStatus:
		return "status"
	}
	return "unknown"
}

type routeKey struct {
	method string
	path   string
}

var routes = map[routeKey]Route{
	{"POST", "/connect"}:      RouteConnect,
	{"POST", "/send-private"}: RouteSendPrivate,
	{"POST", "/send-all"}:     RouteSendAll,
	{"GET", "/status"}:        RouteStatus,
}

// ResolveRoute matches method and path exactly.
func ResolveRoute(method, path string) Route {
	return routes[routeKey{method, path}]
}

// API answers one-shot control envelopes against the registry.
type API struct {
	reg    *Registry
	hosts  map[string]bool
	logger *slog.Logger
}

// NewAPI accepts Host headers naming serverName, serverName:port or
// host:port.
func NewAPI(reg *Registry, host, serverName string, port int, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	p := strconv.Itoa(port)
	hosts := map[string]bool{
		host + ":" + p: true,
	}
	if serverName != "" {
		hosts[serverName] = true
		hosts[serverName+":"+p] = true
	}
	return &API{reg: reg, hosts: hosts, logger: logger}
}

// CheckHost validates the Host header of req.
func (a *API) CheckHost(req *wire.Request) error {
	host := req.Header.Get(wire.HostHeader)
	if host == "" {
		return fmt.Errorf("%w: missing host header", wire.ErrMalformedRequest)
	}
	if !a.hosts[host] {
		return fmt.Errorf("%w: unknown host %q", ErrNotFound, host)
	}
	return nil
}

// Route validates req and resolves its route.
func (a *API) Route(req *wire.Request) (Route, error) {
	if err := a.CheckHost(req); err != nil {
		return RouteUnknown, err
	}
	return ResolveRoute(req.Method, req.Path()), nil
}

// Handle runs a one-shot route. RouteConnect is not one-shot and is answered
// as not found; the server hands it to HandleSession instead.
func (a *API) Handle(route Route, req *wire.Request) *wire.Response {
	var resp *wire.Response
	switch route {
	case RouteSendPrivate:
		resp = a.sendPrivate(req)
	case RouteSendAll:
		resp = a.sendAll(req)
	case RouteStatus:
		resp = a.status()
	default:
		resp = wire.NewResponse(http.StatusNotFound, http.StatusText(http.StatusNotFound))
	}
	EnvelopesTotal.WithLabelValues(route.String(), strconv.Itoa(resp.Status)).Inc()
	return resp
}

func (a *API) sendPrivate(req *wire.Request) *wire.Response {
	msg, err := Decode([]byte(req.Body))
	if err != nil {
		return a.errorResponse(err)
	}
	if err := validate.Var(msg.From, "notblank"); err != nil {
		return wire.NewResponse(http.StatusBadRequest, "from_username is required")
	}
	if err := validate.Var(msg.To, "notblank"); err != nil {
		return wire.NewResponse(http.StatusBadRequest, "to_username is required")
	}
	msg.IsPrivate = true

	if err := a.reg.SendPrivate(msg); err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return wire.NewResponse(http.StatusNotFound, fmt.Sprintf("User %s not found.", msg.To))
		}
		return a.errorResponse(err)
	}
	return wire.NewResponse(http.StatusOK, "")
}

func (a *API) sendAll(req *wire.Request) *wire.Response {
	msg, err := Decode([]byte(req.Body))
	if err != nil {
		return a.errorResponse(err)
	}
	if err := validate.Var(msg.From, "notblank"); err != nil {
		return wire.NewResponse(http.StatusBadRequest, "from_username is required")
	}
	msg.To = ""
	msg.IsPrivate = false

	if err := a.reg.Broadcast(msg); err != nil {
		return a.errorResponse(err)
	}
	return wire.NewResponse(http.StatusOK, "")
}

func (a *API) status() *wire.Response {
	st, err := a.reg.Status()
	if err != nil {
		return a.errorResponse(err)
	}
	return wire.NewResponse(http.StatusOK, st.String())
}

// errorResponse maps the error taxonomy onto a status code.
func (a *API) errorResponse(err error) *wire.Response {
	switch {
	case errors.Is(err, wire.ErrMalformedRequest), errors.Is(err, ErrInvalidMessage):
		return wire.NewResponse(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRecipientNotFound):
		return wire.NewResponse(http.StatusNotFound, err.Error())
	default:
		a.logger.Error("internal error", "error", err)
		return wire.NewResponse(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// ErrorResponse is the response for a request that failed before routing.
func (a *API) ErrorResponse(err error) *wire.Response {
	resp := a.errorResponse(err)
	EnvelopesTotal.WithLabelValues(RouteUnknown.String(), strconv.Itoa(resp.Status)).Inc()
	return resp
}
