package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aflyhorse/kmstat/internal/adapters/http/api"
	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/xlsx"
	service "github.com/aflyhorse/kmstat/internal/app"
	"github.com/aflyhorse/kmstat/internal/auth"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
	"github.com/xuri/excelize/v2"

	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing

type mockDependencies struct {
	boards     map[int][]api.LeaderboardRow
	details    []repository.KillDetail
	players    []api.PlayerRow
	player     model.Player
	chars      []model.Character
	unclaimed  []model.Character
	uploads    []model.MonthlyUpload
	summary    reconcile.Summary
	uploadErr  error
	lastUpload api.UploadRequest
	lastQuery  repository.SearchQuery
}

func (m *mockDependencies) YearlyLeaderboard(ctx context.Context, year int) ([]api.LeaderboardRow, error) {
	if year < 2020 {
		return nil, service.ErrBadPeriod
	}
	return m.boards[year], nil
}

func (m *mockDependencies) MonthlyLeaderboard(ctx context.Context, year, month int) ([]api.LeaderboardRow, error) {
	if year < 2020 || month < 1 || month > 12 {
		return nil, service.ErrBadPeriod
	}
	return m.boards[year], nil
}

func (m *mockDependencies) CurrentPeriod() (int, int) { return 2026, 8 }
func (m *mockDependencies) StartYear() int            { return 2020 }

func (m *mockDependencies) Search(ctx context.Context, q repository.SearchQuery) ([]repository.KillDetail, error) {
	m.lastQuery = q
	return m.details, nil
}

func (m *mockDependencies) ListPlayers(ctx context.Context) ([]api.PlayerRow, error) {
	return m.players, nil
}

func (m *mockDependencies) PlayerCharacters(ctx context.Context, playerID int64) (model.Player, []model.Character, error) {
	if playerID != m.player.ID {
		return model.Player{}, nil, repository.ErrNotFound
	}
	return m.player, m.chars, nil
}

func (m *mockDependencies) UnclaimedCharacters(ctx context.Context) ([]model.Character, error) {
	return m.unclaimed, nil
}

func (m *mockDependencies) ProcessUpload(ctx context.Context, req api.UploadRequest, wb xlsx.Workbook) (api.UploadResult, error) {
	m.lastUpload = req
	if m.uploadErr != nil {
		return api.UploadResult{}, m.uploadErr
	}
	return api.UploadResult{UploadID: 1, PAPRows: len(wb.PAP)}, nil
}

func (m *mockDependencies) ListUploads(ctx context.Context) ([]model.MonthlyUpload, error) {
	return m.uploads, nil
}

func (m *mockDependencies) UploadExists(ctx context.Context, year, month int) (bool, error) {
	for _, u := range m.uploads {
		if u.Year == year && u.Month == month {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDependencies) DeleteUpload(ctx context.Context, year, month int) error {
	for _, u := range m.uploads {
		if u.Year == year && u.Month == month {
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockDependencies) UploadSummary(ctx context.Context, year, month int) (reconcile.Summary, error) {
	for _, u := range m.uploads {
		if u.Year == year && u.Month == month {
			return m.summary, nil
		}
	}
	return reconcile.Summary{}, repository.ErrNotFound
}

func (m *mockDependencies) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

type mockAuthorizer struct {
	token    string
	username string
	loggedIn bool
}

func (m *mockAuthorizer) Login(ctx context.Context, username, password string) (string, error) {
	if username != m.username || password != "secret" {
		return "", auth.ErrInvalidCredentials
	}
	m.loggedIn = true
	return m.token, nil
}

func (m *mockAuthorizer) Logout(token string) {
	if token == m.token {
		m.loggedIn = false
	}
}

func (m *mockAuthorizer) Validate(token string) (string, bool) {
	if m.loggedIn && token == m.token {
		return m.username, true
	}
	return "", false
}

func (m *mockAuthorizer) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	return nil
}

func newTestMux(deps *mockDependencies, authz *mockAuthorizer) *http.ServeMux {
	server := api.NewServer(deps, authz)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func workbookUpload(t *testing.T, year, month string) (*bytes.Buffer, string) {
	t.Helper()

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", xlsx.SheetPAP)
	_ = f.SetSheetRow(xlsx.SheetPAP, "A1", &[]any{"Character", "Player", "PAP", "Strategic PAP"})
	_ = f.SetSheetRow(xlsx.SheetPAP, "A2", &[]any{"Alpha Pilot", "Alpha", 4, 1})
	_, _ = f.NewSheet(xlsx.SheetBounty)
	_ = f.SetSheetRow(xlsx.SheetBounty, "A1", &[]any{"Character", "Tax"})
	_ = f.SetSheetRow(xlsx.SheetBounty, "A2", &[]any{"Alpha Pilot", 1000})
	_, _ = f.NewSheet(xlsx.SheetMining)
	_ = f.SetSheetRow(xlsx.SheetMining, "A1", &[]any{"Character", "Volume", "Main Character"})
	_ = f.SetSheetRow(xlsx.SheetMining, "A2", &[]any{"Alpha Pilot", 500, ""})
	content, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "monthly.xlsx")
	_, _ = part.Write(content.Bytes())
	_ = mw.WriteField("year", year)
	_ = mw.WriteField("month", month)
	_ = mw.WriteField("tax_rate", "0.1")
	_ = mw.WriteField("ore_convert_rate", "0.9")
	_ = mw.Close()
	return &body, mw.FormDataContentType()
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{
			boards: map[int][]api.LeaderboardRow{
				2026: {{Rank: 1, PlayerID: 7, Name: "Alpha", TotalValue: 1e9}},
			},
			players:   []api.PlayerRow{{ID: 7, Name: "Alpha"}},
			player:    model.Player{ID: 7, Title: "Alpha"},
			chars:     []model.Character{{ID: 101, Name: "Alpha Pilot"}},
			unclaimed: []model.Character{{ID: 202, Name: "Drifter"}},
		}
		mux := newTestMux(deps, &mockAuthorizer{})

		Convey("The health endpoint serves metrics", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("The stats endpoint returns JSON", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/stats", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "started")
		})

		Convey("The leaderboard defaults to the current month", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/leaderboard", nil))
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Year    int                  `json:"year"`
				Month   int                  `json:"month"`
				Entries []api.LeaderboardRow `json:"entries"`
			}
			So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
			So(resp.Year, ShouldEqual, 2026)
			So(resp.Month, ShouldEqual, 8)
			So(resp.Entries, ShouldHaveLength, 1)
			So(resp.Entries[0].Name, ShouldEqual, "Alpha")
		})

		Convey("A yearly board omits the month", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/leaderboard?year=2026", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldNotContainSubstring, `"month"`)
		})

		Convey("Out-of-range periods are clamped, not rejected", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/leaderboard?year=2026&month=13", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"month":12`)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/leaderboard?year=1999&month=1", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"year":2020`)
		})

		Convey("A malformed month falls back to the current one", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/leaderboard?year=2026&month=latest", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"month":8`)
		})

		Convey("Search forwards query filters", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/search?character=Alpha&limit=5", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastQuery.CharacterName, ShouldEqual, "Alpha")
			So(deps.lastQuery.Limit, ShouldEqual, 5)
		})

		Convey("Search rejects malformed times", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/search?from=yesterday", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Players list and detail round-trip", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/players", nil))
			So(w.Code, ShouldEqual, http.StatusOK)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/players/7/characters", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Alpha Pilot")

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/players/999/characters", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Unclaimed characters are listed", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/characters/unclaimed", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "Drifter")
		})
	})
}

func TestAuthFlow(t *testing.T) {
	Convey("Given a server with one account", t, func() {
		authz := &mockAuthorizer{token: "tok-1", username: "admin"}
		mux := newTestMux(&mockDependencies{}, authz)

		Convey("Login rejects wrong credentials", func() {
			w := httptest.NewRecorder()
			body := `{"username":"admin","password":"wrong"}`
			req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "invalid_credentials")
		})

		Convey("Login rejects malformed bodies", func() {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader("{"))
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Login issues a token and a cookie", func() {
			w := httptest.NewRecorder()
			body := `{"username":"admin","password":"secret"}`
			req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "tok-1")
			So(w.Header().Get("Set-Cookie"), ShouldContainSubstring, "kmstat_session")

			Convey("And the token passes the guard", func() {
				w := httptest.NewRecorder()
				req := httptest.NewRequest("POST", "/api/auth/logout", nil)
				req.Header.Set("Authorization", "Bearer tok-1")
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(authz.loggedIn, ShouldBeFalse)
			})
		})

		Convey("Guarded endpoints reject anonymous requests", func() {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/auth/password", strings.NewReader(`{}`))
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestUploadEndpoints(t *testing.T) {
	Convey("Given a server with a logged-in session", t, func() {
		deps := &mockDependencies{
			uploads: []model.MonthlyUpload{{ID: 1, Year: 2026, Month: 7, UploadedBy: "admin"}},
		}
		authz := &mockAuthorizer{token: "tok-1", username: "admin", loggedIn: true}
		mux := newTestMux(deps, authz)

		Convey("Listing uploads is public", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/uploads", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Posting without a session is rejected", func() {
			body, ctype := workbookUpload(t, "2026", "8")
			req := httptest.NewRequest("POST", "/api/uploads", body)
			req.Header.Set("Content-Type", ctype)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A valid post is processed and attributed", func() {
			body, ctype := workbookUpload(t, "2026", "8")
			req := httptest.NewRequest("POST", "/api/uploads", body)
			req.Header.Set("Content-Type", ctype)
			req.Header.Set("Authorization", "Bearer tok-1")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(deps.lastUpload.Year, ShouldEqual, 2026)
			So(deps.lastUpload.Month, ShouldEqual, 8)
			So(deps.lastUpload.UploadedBy, ShouldEqual, "admin")
			So(w.Body.String(), ShouldContainSubstring, `"pap_rows":1`)
		})

		Convey("A duplicate month yields 409 with the period", func() {
			deps.uploadErr = &service.UploadExistsError{Year: 2026, Month: 7}
			body, ctype := workbookUpload(t, "2026", "7")
			req := httptest.NewRequest("POST", "/api/uploads", body)
			req.Header.Set("Content-Type", ctype)
			req.Header.Set("Authorization", "Bearer tok-1")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(w.Body.String(), ShouldContainSubstring, `"code":"exists"`)
			So(w.Body.String(), ShouldContainSubstring, `"month":7`)
		})

		Convey("The existence probe answers without auth", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/uploads/2026/7/exists", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"exists":true`)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/uploads/2026/8/exists", nil))
			So(w.Body.String(), ShouldContainSubstring, `"exists":false`)
		})

		Convey("The summary 404s for a missing month", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/api/uploads/2026/8", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Deleting requires a session", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/uploads/2026/7", nil))
			So(w.Code, ShouldEqual, http.StatusUnauthorized)

			w = httptest.NewRecorder()
			req := httptest.NewRequest("DELETE", "/api/uploads/2026/7", nil)
			req.Header.Set("Authorization", "Bearer tok-1")
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})
	})
}
