// Package everef downloads and walks EVERef daily killmail archives.
package everef

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aflyhorse/kmstat/pkg/logger"
	"github.com/aflyhorse/kmstat/pkg/metrics"
)

const defaultEndpoint = "https://data.everef.net"

// RawKillmail is the subset of an archived killmail the importer needs.
type RawKillmail struct {
	KillmailID   int64  `json:"killmail_id"`
	KillmailTime string `json:"killmail_time"`
	SolarSystem  int64  `json:"solar_system_id"`
	Victim       struct {
		ShipTypeID    int64 `json:"ship_type_id"`
		CorporationID int64 `json:"corporation_id"`
		AllianceID    int64 `json:"alliance_id"`
	} `json:"victim"`
	Attackers []struct {
		CharacterID   int64 `json:"character_id"`
		CorporationID int64 `json:"corporation_id"`
		FinalBlow     bool  `json:"final_blow"`
	} `json:"attackers"`
}

// Time parses the killmail timestamp into UTC.
func (k RawKillmail) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, k.KillmailTime)
}

// Filter decides which archived killmails belong to the corporation.
type Filter struct {
	CorporationID int64
	AllianceID    int64 // 0 when the corporation flies independent
}

// Match reports whether the final blow belongs to the corporation and the
// victim is a legitimate target, returning the credited character id.
// Independent corporations exclude kills on their own members; allied ones
// exclude kills inside the alliance.
func (f Filter) Match(k RawKillmail) (int64, bool) {
	var charID int64
	found := false
	for _, a := range k.Attackers {
		if a.FinalBlow && a.CorporationID == f.CorporationID {
			charID = a.CharacterID
			found = true
			break
		}
	}
	if !found || charID == 0 {
		return 0, false
	}
	if f.AllianceID == 0 {
		if k.Victim.CorporationID == f.CorporationID {
			return 0, false
		}
	} else if k.Victim.AllianceID == f.AllianceID {
		return 0, false
	}
	return charID, true
}

// Fetcher downloads daily archives.
type Fetcher struct {
	endpoint   string
	httpClient *http.Client
	spoolDir   string
	log        logger.Logger
}

// NewFetcher creates an archive fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		log:        logger.Named("everef"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchDay streams the killmail archive for one UTC day. The caller closes
// the returned body.
func (f *Fetcher) FetchDay(ctx context.Context, day time.Time) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/killmails/%d/killmails-%s.tar.bz2",
		f.endpoint, day.Year(), day.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.RecordClientRequest("everef", "error")
		return nil, fmt.Errorf("fetching archive for %s: %w", day.Format("2006-01-02"), err)
	}
	metrics.RecordClientRequest("everef", strconv.Itoa(resp.StatusCode))
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("archive for %s: %w", day.Format("2006-01-02"), ErrNoArchive)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("archive for %s: unexpected status %d", day.Format("2006-01-02"), resp.StatusCode)
	}
	f.log.Info(ctx, "downloading killmail archive", logger.String("day", day.Format("2006-01-02")))
	if f.spoolDir == "" {
		return resp.Body, nil
	}
	return f.spool(resp.Body)
}

// spool copies the archive to a temp file so a slow walk does not hold the
// upstream connection open. The file is removed when the caller closes it.
func (f *Fetcher) spool(body io.ReadCloser) (io.ReadCloser, error) {
	defer body.Close()

	if err := os.MkdirAll(f.spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating spool dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.spoolDir, "killmails-*.tar.bz2")
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spooling archive: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("rewinding spool file: %w", err)
	}
	return &spoolFile{File: tmp}, nil
}

type spoolFile struct {
	*os.File
}

func (s *spoolFile) Close() error {
	err := s.File.Close()
	if rmErr := os.Remove(s.File.Name()); err == nil {
		err = rmErr
	}
	return err
}

// WalkArchive decodes every killmail JSON file in a tar.bz2 stream and hands
// it to fn. Malformed entries are skipped, a failing fn stops the walk.
func WalkArchive(r io.Reader, fn func(RawKillmail) error) error {
	tr := tar.NewReader(bzip2.NewReader(r))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".json") {
			continue
		}

		var k RawKillmail
		if err := json.NewDecoder(tr).Decode(&k); err != nil {
			metrics.RecordImportError()
			continue
		}
		if k.KillmailID == 0 {
			continue
		}
		if err := fn(k); err != nil {
			return err
		}
	}
}
