package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Journal struct {
	db            *sql.DB
	gate          *Gate
	log           *slog.Logger
	templates     map[string]*template.Template
	secureCookies bool
}

func NewJournal(db *sql.DB, gate *Gate, log *slog.Logger, secureCookies bool) *Journal {
	return &Journal{
		db:            db,
		gate:          gate,
		log:           log,
		templates:     loadTemplates(),
		secureCookies: secureCookies,
	}
}

func (j *Journal) render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	if _, ok := data["IsAuthenticated"]; !ok {
		data["IsAuthenticated"] = j.gate.CurrentIdentity(r) != ""
	}
	if _, ok := data["CSRFToken"]; !ok {
		data["CSRFToken"] = ensureCSRFToken(w, r, j.secureCookies)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := j.templates[page].ExecuteTemplate(w, "base", data); err != nil {
		j.log.ErrorContext(r.Context(), "rendering template", "page", page, "error", err)
	}
}

// fail renders the response for an error kind. Validation errors are
// handled by the caller where a form has to be re-rendered.
func (j *Journal) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch status := statusFor(err); status {
	case http.StatusNotFound:
		j.NotFound(w, r)
	case http.StatusUnauthorized:
		j.unauthorized(w, r)
	case http.StatusBadRequest:
		http.Error(w, err.Error(), status)
	default:
		j.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (j *Journal) NotFound(w http.ResponseWriter, r *http.Request) {
	j.render(w, r, http.StatusNotFound, "404.html", map[string]any{"Title": "Not Found"})
}

func (j *Journal) unauthorized(w http.ResponseWriter, r *http.Request) {
	j.render(w, r, http.StatusUnauthorized, "login.html", map[string]any{
		"Title":           "Login",
		"Error":           "401 Unauthorized",
		"IsAuthenticated": false,
	})
}

func (j *Journal) Home(w http.ResponseWriter, r *http.Request) {
	entries, err := NewEntryStore(j.db).List(r.Context())
	if err != nil {
		j.fail(w, r, err)
		return
	}

	j.render(w, r, http.StatusOK, "list.html", map[string]any{
		"Title":   "Entries",
		"Entries": entries,
	})
}

func (j *Journal) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := parseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		j.fail(w, r, err)
		return
	}

	entry, err := NewEntryStore(j.db).Get(r.Context(), id)
	if err != nil {
		j.fail(w, r, err)
		return
	}

	j.render(w, r, http.StatusOK, "entry.html", map[string]any{
		"Title": entry.Title,
		"Entry": entry,
	})
}

func (j *Journal) renderForm(w http.ResponseWriter, r *http.Request, status int, title, action string, entryTitle, entryText string, formErr error) {
	data := map[string]any{
		"Title":           title,
		"Action":          action,
		"EntryTitle":      entryTitle,
		"EntryText":       entryText,
		"IsAuthenticated": true,
	}
	if formErr != nil {
		data["Error"] = formErr.Error()
	}
	j.render(w, r, status, "form.html", data)
}

func (j *Journal) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		j.renderForm(w, r, http.StatusOK, "New Entry", "/add", "", "", nil)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	title := r.FormValue("title")
	text := r.FormValue("text")

	var entry *Entry
	err := withTx(r.Context(), j.db, func(ctx context.Context, tx DBTX) error {
		var err error
		entry, err = NewEntryStore(tx).Create(ctx, title, text)
		return err
	})
	if errors.Is(err, ErrValidation) {
		j.renderForm(w, r, http.StatusBadRequest, "New Entry", "/add", title, text, err)
		return
	}
	if err != nil {
		j.fail(w, r, err)
		return
	}

	j.log.InfoContext(r.Context(), "entry created", "id", entry.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (j *Journal) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := parseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		j.fail(w, r, err)
		return
	}

	action := fmt.Sprintf("/update/%d", id)

	if r.Method == http.MethodGet {
		entry, err := NewEntryStore(j.db).Get(r.Context(), id)
		if err != nil {
			j.fail(w, r, err)
			return
		}
		j.renderForm(w, r, http.StatusOK, fmt.Sprintf("Editing %q", entry.Title), action, entry.Title, entry.Text, nil)
		return
	}

	if !parseFormWithCSRF(w, r) {
		return
	}

	title := r.FormValue("title")
	text := r.FormValue("text")

	err = withTx(r.Context(), j.db, func(ctx context.Context, tx DBTX) error {
		_, err := NewEntryStore(tx).Update(ctx, id, title, text)
		return err
	})
	if errors.Is(err, ErrValidation) {
		j.renderForm(w, r, http.StatusBadRequest, "Edit Entry", action, title, text, err)
		return
	}
	if err != nil {
		j.fail(w, r, err)
		return
	}

	j.log.InfoContext(r.Context(), "entry updated", "id", id)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (j *Journal) Health(w http.ResponseWriter, r *http.Request) {
	if err := j.db.PingContext(r.Context()); err != nil {
		j.fail(w, r, storeFailure("pinging database", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
