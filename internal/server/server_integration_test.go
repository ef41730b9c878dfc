package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/postprocess"
	"github.com/ayusman/framepipe/internal/store"
	"github.com/gorilla/websocket"
)

func frameResult(seq uint64) app.FrameResult {
	top := postprocess.Class{Index: 1, Label: "person", Score: 0.9}
	return app.FrameResult{
		Seq:       seq,
		Result:    postprocess.Result{Top: top, Ranked: []postprocess.Class{top}},
		Inference: 8 * time.Millisecond,
		FPS:       15,
		At:        time.Now(),
	}
}

func TestAPI_RunWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	// 1. Journal a short run
	run := &store.Run{Profile: "host-webcam", CacheMode: "non-cacheable", PixelPath: "software"}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	j := store.NewJournal(s, run.ID, 0)
	for seq := uint64(1); seq <= 4; seq++ {
		j.Observe(frameResult(seq))
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Journal.Close() error = %v", err)
	}
	if err := s.Runs().Finish(run.ID, 4, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	srv := New(Config{Store: s})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// 2. List runs
	resp, err := client.Get(ts.URL + "/api/runs")
	if err != nil {
		t.Fatalf("GET /api/runs error = %v", err)
	}
	var listed struct {
		Runs []struct {
			ID     string `json:"id"`
			Frames int64  `json:"frames"`
		} `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Runs) != 1 || listed.Runs[0].ID != run.ID || listed.Runs[0].Frames != 4 {
		t.Fatalf("runs = %+v, want run %s with 4 frames", listed.Runs, run.ID)
	}

	// 3. Results of the run
	resp, err = client.Get(ts.URL + "/api/runs/" + run.ID + "/results")
	if err != nil {
		t.Fatalf("GET results error = %v", err)
	}
	var results struct {
		Total   int64          `json:"total"`
		Results []store.Result `json:"results"`
	}
	json.NewDecoder(resp.Body).Decode(&results)
	resp.Body.Close()

	if results.Total != 4 || len(results.Results) != 4 {
		t.Fatalf("results = %d/%d, want 4", len(results.Results), results.Total)
	}
	if r := results.Results[0]; r.Label != "person" || r.InferenceMs != 8 {
		t.Errorf("first result = %+v", r)
	}
}

func TestAPI_ResultsWebSocket(t *testing.T) {
	hub := NewResultsHub()
	ts := httptest.NewServer(New(Config{Results: hub}))
	defer ts.Close()

	// Nobody listening: nothing is queued.
	hub.Observe(frameResult(1))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/results"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Observe(frameResult(2))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Seq    uint64 `json:"seq"`
		Result struct {
			Top struct {
				Label string  `json:"label"`
				Score float64 `json:"score"`
			} `json:"top"`
		} `json:"result"`
		FPS float64 `json:"fps"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Seq != 2 || got.Result.Top.Label != "person" || got.FPS != 15 {
		t.Errorf("message = %+v, want seq 2 person at 15 fps", got)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type staticFrames struct {
	img *image.RGBA
}

func (f staticFrames) Latest() *image.RGBA { return f.img }

func TestAPI_Stream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stream test")
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{R: 200, A: 255}), image.Point{}, draw.Src)

	ts := httptest.NewServer(New(Config{Frames: staticFrames{img}, StreamInterval: 10 * time.Millisecond}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "--frame" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	var length int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading part header: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, _ = strconv.Atoi(v)
		}
	}
	if length == 0 {
		t.Fatal("missing Content-Length")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	if !bytes.HasPrefix(body, []byte{0xFF, 0xD8}) {
		t.Errorf("frame does not start with a JPEG marker: % x", body[:4])
	}
}
