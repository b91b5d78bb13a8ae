package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

// The identity provider pushes profile-sync events (user created/updated/
// deleted) through a svix-signed webhook. Verification failures are 400s;
// a missing secret is a deployment error, not a client one.

type Verifier interface {
	Verify(payload []byte, headers http.Header) error
}

// Recorder mirrors the exam service's event sink.
type Recorder interface {
	Record(ctx context.Context, typ, key string, data any)
}

type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		Username       string `json:"username"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// IdentityHandler builds the production handler with svix verification.
func IdentityHandler(secret string, db *sql.DB, rec Recorder) http.HandlerFunc {
	var v Verifier
	if secret != "" {
		if wh, err := svix.NewWebhook(secret); err == nil {
			v = wh
		}
	}
	return Handler(v, db, rec)
}

// Handler is the verifier-injectable core, exported for tests.
func Handler(v Verifier, db *sql.DB, rec Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v == nil {
			http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
			return
		}
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if err := v.Verify(payload, r.Header); err != nil {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}

		var evt identityEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		switch evt.Type {
		case "user.created", "user.updated":
			if evt.Data.ID == "" {
				http.Error(w, "missing user id", http.StatusBadRequest)
				return
			}
			if err := upsertProfile(r.Context(), db, evt); err != nil {
				http.Error(w, "sync failed", http.StatusInternalServerError)
				return
			}
			if rec != nil {
				rec.Record(r.Context(), "UserSynced", evt.Data.ID, map[string]string{"event": evt.Type})
			}
		case "user.deleted":
			if evt.Data.ID == "" {
				http.Error(w, "missing user id", http.StatusBadRequest)
				return
			}
			if _, err := db.ExecContext(r.Context(),
				`DELETE FROM user_profiles WHERE user_id=$1`, evt.Data.ID); err != nil {
				http.Error(w, "sync failed", http.StatusInternalServerError)
				return
			}
			if rec != nil {
				rec.Record(r.Context(), "UserSynced", evt.Data.ID, map[string]string{"event": evt.Type})
			}
		default:
			// unknown event types are acknowledged and ignored
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func upsertProfile(ctx context.Context, db *sql.DB, evt identityEvent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, display_name, image_url, updated_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name=EXCLUDED.display_name, image_url=EXCLUDED.image_url, updated_at=EXCLUDED.updated_at`,
		evt.Data.ID, displayName(evt), evt.Data.ImageURL, time.Now().Unix())
	return err
}

// displayName mirrors the identity provider's precedence: full name,
// then username, then first email, then a generic fallback.
func displayName(evt identityEvent) string {
	if evt.Data.FirstName != "" && evt.Data.LastName != "" {
		return evt.Data.FirstName + " " + evt.Data.LastName
	}
	if evt.Data.Username != "" {
		return evt.Data.Username
	}
	if len(evt.Data.EmailAddresses) > 0 && evt.Data.EmailAddresses[0].EmailAddress != "" {
		return evt.Data.EmailAddresses[0].EmailAddress
	}
	return "User"
}
