package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteRegister(t *testing.T) {
	Convey("Given the embedded frontend", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()
		Register(ctx, mux)

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			return w
		}

		Convey("The root serves the leaderboard page", func() {
			w := get("/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "Leaderboard")
		})

		Convey("Each page is reachable", func() {
			for _, page := range []string{"/search.html", "/players.html", "/upload.html"} {
				So(get(page).Code, ShouldEqual, http.StatusOK)
			}
		})

		Convey("Shared assets are served", func() {
			So(get("/style.css").Code, ShouldEqual, http.StatusOK)
			So(get("/app.js").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Unknown assets 404", func() {
			So(get("/missing.html").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
