package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lie-detector/db"
	"lie-detector/knn"
	"lie-detector/landmarks"
	"lie-detector/models"
	"lie-detector/session"
	"lie-detector/utils"

	"github.com/go-playground/validator/v10"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestValidate = validator.New()

type apiError struct {
	Message string `json:"message"`
}

type classifyRequest struct {
	Features [][]float64 `json:"features" validate:"required,min=1,dive,required,min=1"`
}

type classifyResponse struct {
	Predictions []knn.Prediction `json:"predictions"`
}

const defaultRecentReports = 50

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// allowCORS sets the cross-origin headers and answers preflight requests.
// It reports whether the caller should continue.
func allowCORS(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Credentials", "true")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	return true
}

func newClassifyHandler(classifier *knn.Classifier) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !allowCORS(w, r, "POST") {
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req classifyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if err := requestValidate.Struct(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "features must hold at least one non-empty vector")
			return
		}

		predictions, err := classifier.PredictBatch(req.Features)
		if err != nil {
			logger.WarnContext(ctx, "classification rejected", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, classifyResponse{Predictions: predictions})
	}
}

// newModelHandler serves the model stats on GET and reloads the dataset from
// datasetPath on POST.
func newModelHandler(classifier *knn.Classifier, datasetPath string) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !allowCORS(w, r, "GET, POST") {
			return
		}

		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, classifier.Stats())
		case http.MethodPost:
			dataset, err := knn.LoadDataset(datasetPath)
			if err == nil {
				err = classifier.Reload(dataset)
			}
			if err != nil {
				err := xerrors.New(err)
				logger.ErrorContext(ctx, "failed to reload dataset", slog.Any("error", err))
				writeJSONError(w, http.StatusUnprocessableEntity, "failed to reload dataset")
				return
			}
			logger.InfoContext(ctx, "dataset reloaded",
				slog.String("path", datasetPath),
				slog.Int("rows", len(dataset.Rows)),
			)
			writeJSON(w, http.StatusOK, classifier.Stats())
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// newReportsHandler returns one session's report for ?session=<id>, or the
// most recent checkpoints across sessions (?limit=n).
func newReportsHandler(store db.ReportStore) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !allowCORS(w, r, "GET") {
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if sessionID := strings.TrimSpace(r.URL.Query().Get("session")); sessionID != "" {
			checkpoints, err := store.SessionCheckpoints(ctx, sessionID)
			if err != nil {
				err := xerrors.New(err)
				logger.ErrorContext(ctx, "failed to load session reports", slog.Any("error", err))
				writeJSONError(w, http.StatusInternalServerError, "failed to load reports")
				return
			}
			if len(checkpoints) == 0 {
				writeJSONError(w, http.StatusNotFound, "session not found")
				return
			}
			writeJSON(w, http.StatusOK, models.BuildSessionReport(sessionID, checkpoints))
			return
		}

		limit := defaultRecentReports
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		checkpoints, err := store.RecentCheckpoints(ctx, limit)
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to load recent reports", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to load reports")
			return
		}
		if checkpoints == nil {
			checkpoints = []models.CheckpointReport{}
		}
		writeJSON(w, http.StatusOK, checkpoints)
	}
}

func serve(protocol, port, tuningPath string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	tuning, err := session.LoadTuning(tuningPath)
	if err != nil {
		log.Fatalf("failed to load tuning: %v", err)
	}

	var opts []knn.Option
	if tuning.Standardize {
		opts = append(opts, knn.WithStandardization())
	}
	classifier, err := knn.NewClassifierFromFile(tuning.DatasetPath, tuning.K, opts...)
	if err != nil {
		log.Fatalf("failed to load classifier: %v", err)
	}

	ctx := context.Background()
	store, err := db.NewReportStore(ctx)
	if err != nil {
		log.Fatalf("failed to open report store: %v", err)
	}
	defer store.Close()

	detector := landmarks.NewServiceClient(utils.GetEnv("LANDMARK_SERVICE_URL", ""))
	if err := detector.HealthCheck(ctx); err != nil {
		log.Printf("WARNING: %v\n", err)
		log.Println("Frames without client-side landmarks will fail until the landmark service is up.")
	}

	controller := newSocketController(tuning, classifier, store, detector)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.emitModelInfo(socket)
	})

	server.OnEvent("/", "startSession", func(socket socketio.Conn, msg string) {
		controller.handleStartSession(socket, msg)
	})

	// frame events stay on the connection's goroutine so they are processed in order
	server.OnEvent("/", "frame", func(socket socketio.Conn, msg string) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic in handleFrame for socket %s: %v\n", socket.ID(), r)
				emitError(socket, "internal server error during processing")
			}
		}()
		controller.handleFrame(socket, msg)
	})

	server.OnEvent("/", "checkpoint", func(socket socketio.Conn) {
		controller.handleCheckpoint(socket)
	})

	server.OnEvent("/", "endSession", func(socket socketio.Conn) {
		controller.handleEndSession(socket)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
		controller.handleDisconnect(s.ID())
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/classify", newClassifyHandler(classifier))
	mux.HandleFunc("/api/model", newModelHandler(classifier, tuning.DatasetPath))
	mux.HandleFunc("/api/reports", newReportsHandler(store))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(protocol == "https", port, mux)
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
