package host

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mackerelio/go-osstat/memory"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/collab/pkg/errors"
	"github.com/DeBrosOfficial/collab/pkg/httputil"
	"github.com/DeBrosOfficial/collab/pkg/logging"
	"github.com/DeBrosOfficial/collab/pkg/transport"
)

// Router returns the sync server's HTTP routes.
func (r *Runtime) Router() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get(transport.SocketPath, r.handleSocket)
	router.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteSuccess(w)
	})

	router.Route("/v1", func(v1 chi.Router) {
		v1.Use(middleware.Timeout(30 * time.Second))
		v1.Get("/status", r.handleStatus)
		v1.Get("/locks", r.handleListLocks)
		v1.Delete("/locks/{fieldID}", r.handleForceRelease)
	})
	return router
}

func (r *Runtime) handleSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := transport.Upgrade(w, req, r.opts.Transport, r.logger)
	if err != nil {
		r.logger.ComponentWarn(logging.ComponentHost, "Websocket upgrade failed",
			zap.String("remote", req.RemoteAddr), zap.Error(err))
		return
	}
	if err := r.Attach(conn); err != nil {
		r.logger.ComponentWarn(logging.ComponentHost, "Rejected peer", zap.Error(err))
	}
}

type peerView struct {
	SocketID   string    `json:"socket_id"`
	ClientName string    `json:"client_name"`
	IsHost     bool      `json:"is_host"`
	JoinedAt   time.Time `json:"joined_at"`
}

type lockView struct {
	FieldID    string    `json:"field_id"`
	SocketID   string    `json:"socket_id"`
	ClientName string    `json:"client_name"`
	Since      time.Time `json:"since"`
}

type buildView struct {
	InProgress    bool       `json:"in_progress"`
	Stage         string     `json:"stage,omitempty"`
	LastBuildTime *time.Time `json:"last_build_time,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type memoryView struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
}

type statusView struct {
	Addr   string      `json:"addr"`
	Peers  []peerView  `json:"peers"`
	Locks  int         `json:"locks"`
	Build  buildView   `json:"build"`
	Memory *memoryView `json:"memory,omitempty"`
}

func (r *Runtime) handleStatus(w http.ResponseWriter, req *http.Request) {
	snap, err := r.Snapshot()
	if err != nil {
		errors.WriteHTTPError(w, err, middleware.GetReqID(req.Context()))
		return
	}

	view := statusView{
		Peers: make([]peerView, 0, len(snap.Peers)),
		Locks: len(snap.Locks),
		Build: buildView{
			InProgress: snap.Build.IsBuildInProgress,
			Stage:      snap.Build.Stage,
			LastError:  snap.Build.LastError,
		},
	}
	if addr := r.Addr(); addr != nil {
		view.Addr = addr.String()
	}
	if !snap.Build.LastBuildTime.IsZero() {
		t := snap.Build.LastBuildTime
		view.Build.LastBuildTime = &t
	}
	for _, p := range snap.Peers {
		view.Peers = append(view.Peers, peerView{
			SocketID:   p.SocketID,
			ClientName: p.ClientName,
			IsHost:     p.IsHost,
			JoinedAt:   p.JoinedAt,
		})
	}
	if mem, err := memory.Get(); err == nil {
		view.Memory = &memoryView{Total: mem.Total, Used: mem.Used}
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (r *Runtime) handleListLocks(w http.ResponseWriter, req *http.Request) {
	snap, err := r.Snapshot()
	if err != nil {
		errors.WriteHTTPError(w, err, middleware.GetReqID(req.Context()))
		return
	}
	holder := httputil.QueryParam(req, "holder", "")
	out := make([]lockView, 0, len(snap.Locks))
	for _, l := range snap.Locks {
		if holder != "" && l.HolderClientName != holder && l.HolderSocketID != holder {
			continue
		}
		out = append(out, lockView{
			FieldID:    l.FieldID,
			SocketID:   l.HolderSocketID,
			ClientName: l.HolderClientName,
			Since:      l.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (r *Runtime) handleForceRelease(w http.ResponseWriter, req *http.Request) {
	fieldID := chi.URLParam(req, "fieldID")
	if !httputil.ValidateFieldID(fieldID) {
		errors.WriteHTTPError(w, errors.NewValidationError("fieldID", "invalid field id", fieldID), middleware.GetReqID(req.Context()))
		return
	}
	held, err := r.ForceRelease(fieldID)
	if err != nil {
		errors.WriteHTTPError(w, err, middleware.GetReqID(req.Context()))
		return
	}
	if !held {
		errors.WriteHTTPError(w, errors.NewNotFoundError("lock", fieldID), middleware.GetReqID(req.Context()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
