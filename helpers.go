package main

import (
	"net/http"

	"github.com/kr/pretty"
	"go.uber.org/zap"
)

func answer(w http.ResponseWriter, status int, mime, msg string) {
	w.Header().Set(headerContentType, mime)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// respondError answers with err as plain text when err is not nil.
func respondError(w http.ResponseWriter, log *zap.Logger, err error, status int) bool {
	if err == nil {
		return false
	}

	log.Debug("request refused", zap.Int("status", status), zap.String("error", pretty.Sprint(err)))
	answer(w, status, mimeText, err.Error()+"\n")
	return true
}
