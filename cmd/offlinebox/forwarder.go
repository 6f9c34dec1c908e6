package main

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/festbuddy/offlinebox/internal/coordinator"
	"github.com/festbuddy/offlinebox/internal/oberror"
	"github.com/festbuddy/offlinebox/internal/syncqueue"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// remoteForwarder bridges the sync queue to the remote backend: each action
// becomes a POST of the raw payload to <endpoint>/<action>. The backend owns
// the payload shape and any deduplication.
func remoteForwarder(endpoint string) syncqueue.Handler {
	if endpoint == "" {
		return nil
	}

	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context, action string, payload []byte) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/"+action, bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "could not build remote request")
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := client.Do(req)
		if err != nil {
			return errors.Wrap(err, "could not reach remote backend")
		}
		defer res.Body.Close()

		if res.StatusCode >= http.StatusMultipleChoices {
			return oberror.SyncHandlerFailure(errors.Errorf("remote rejected %s: %s", action, res.Status))
		}
		return nil
	}
}

// watchConnectivity probes the remote endpoint on the sync cadence and feeds
// the transitions to the coordinator, which drains on reconnect.
func watchConnectivity(ctrl *coordinator.Coordinator, endpoint string, interval time.Duration, log logrus.FieldLogger) {
	if endpoint == "" {
		// No remote configured: stay in buffering mode.
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	probe := func() bool {
		req, err := http.NewRequest(http.MethodHead, endpoint, nil)
		if err != nil {
			return false
		}
		res, err := client.Do(req)
		if err != nil {
			return false
		}
		res.Body.Close()
		return true
	}

	ctrl.SetOnline(probe())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			online := probe()
			if online != ctrl.IsOnline() {
				log.WithField("online", online).Info("connectivity changed")
			}
			ctrl.SetOnline(online)
		}
	}()
}
