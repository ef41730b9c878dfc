package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/console"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/server"
	"github.com/ayusman/framepipe/internal/status"
	"github.com/ayusman/framepipe/internal/store"
	"github.com/ayusman/framepipe/internal/tray"
)

type options struct {
	profile  string
	camera   string
	model    string
	labels   string
	db       string
	addr     string
	web      string
	serial   string
	baud     int
	frames   int
	window   bool
	useTray  bool
	profiles bool
	ports    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.profile, "profile", config.DefaultProfile, "build profile")
	flag.StringVar(&opts.camera, "camera", "0", `camera device id, or "synthetic"`)
	flag.StringVar(&opts.model, "model", "", "model file for OpenCV DNN (mock engine when empty)")
	flag.StringVar(&opts.labels, "labels", "", "class names file, one per line")
	flag.StringVar(&opts.db, "db", "", "result journal (default ~/.framepipe/framepipe.db, \"off\" to disable)")
	flag.StringVar(&opts.addr, "addr", ":8080", "HTTP listen address, empty to disable")
	flag.StringVar(&opts.web, "web", "", "static files served at /")
	flag.StringVar(&opts.serial, "serial", "", "serial port for the result console")
	flag.IntVar(&opts.baud, "baud", console.DefaultBaud, "serial baud rate")
	flag.IntVar(&opts.frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	flag.BoolVar(&opts.window, "window", false, "show the display in a window")
	flag.BoolVar(&opts.useTray, "tray", false, "show status in the system tray")
	flag.BoolVar(&opts.profiles, "profiles", false, "list build profiles and exit")
	flag.BoolVar(&opts.ports, "ports", false, "list serial ports and exit")
	flag.Parse()

	if opts.profiles {
		for _, name := range config.Names() {
			fmt.Println(name)
		}
		return
	}
	if opts.ports {
		ports, err := console.Ports()
		if err != nil {
			log.Fatalf("framepipe: %v", err)
		}
		for _, port := range ports {
			fmt.Println(port)
		}
		return
	}

	if err := run(opts); err != nil {
		log.Printf("framepipe: %v", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	dataDir := filepath.Join(homeDir, ".framepipe")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// One process drives the camera and panel at a time.
	lock := flock.New(filepath.Join(dataDir, "framepipe.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock: %w", err)
	}
	if !locked {
		return errors.New("another framepipe instance is running")
	}
	defer lock.Unlock()

	camera, err := openCamera(opts.camera)
	if err != nil {
		return err
	}

	indicators := status.Multi{&status.Logger{}}
	var tr *tray.Tray
	if opts.useTray {
		tr = tray.New(opts.profile)
		indicators = append(indicators, tr)
	}

	var panel display.Panel
	if opts.window {
		panel = display.NewWindowPanel("framepipe " + opts.profile)
	}

	a, err := app.New(app.Config{
		Profile:    opts.profile,
		LabelsPath: opts.labels,
		ModelPath:  opts.model,
		Camera:     camera,
		Panel:      panel,
		Indicator:  indicators,
	})
	if err != nil {
		return err
	}

	var journal *store.Journal
	var st *store.Store
	var runRec *store.Run
	if opts.db != "off" {
		dbPath := opts.db
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "framepipe.db")
		}
		st, err = store.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()

		p := a.Profile()
		runRec = &store.Run{Profile: p.Name, CacheMode: string(p.Memory.CacheMode), PixelPath: string(p.Network.PixelPath)}
		if err := st.Runs().Create(runRec); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		journal = store.NewJournal(st, runRec.ID, 0)
		a.Subscribe(journal)
	}

	hub := server.NewResultsHub()
	a.Subscribe(hub)

	if opts.serial != "" {
		sink, err := console.Open(opts.serial, opts.baud)
		if err != nil {
			return err
		}
		defer sink.Close()
		a.Subscribe(sink)
	}
	if tr != nil {
		a.Subscribe(tr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.StartN(ctx, opts.frames); err != nil {
		finish(st, runRec, journal, 0, err)
		a.Stop()
		return err
	}

	if opts.addr != "" {
		o := a.Orchestrator()
		srv := server.New(server.Config{
			StaticDir: opts.web,
			Store:     st,
			Pipeline:  o,
			Frames:    o.Display(),
			Results:   hub,
		})
		go func() {
			log.Printf("framepipe: serving on %s", opts.addr)
			if err := srv.ListenAndServe(opts.addr); err != nil {
				log.Printf("framepipe: server failed: %v", err)
			}
		}()
	}

	if tr != nil {
		tr.OnQuit(cancel)
		tr.OnOpenStream(func() {
			log.Printf("framepipe: live view at http://localhost%s/api/stream", opts.addr)
		})
		go func() {
			a.Wait()
			tr.Quit()
		}()
		// The tray owns the main thread until it quits.
		tr.Run()
	}

	runErr := a.Wait()
	stopErr := a.Stop()
	snap := a.Orchestrator().Snapshot()
	finish(st, runRec, journal, snap.Frames, runErr)
	log.Printf("framepipe: %d frames, %.1f fps", snap.Frames, snap.FPS)

	if runErr != nil {
		return runErr
	}
	return stopErr
}

func openCamera(spec string) (capture.Driver, error) {
	if spec == "synthetic" {
		return capture.NewSyntheticCamera(capture.Gradient()), nil
	}
	id, err := strconv.Atoi(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid camera %q: want a device id or \"synthetic\"", spec)
	}
	return capture.NewOpenCVCamera(id), nil
}

// finish flushes the journal and records how the run ended.
func finish(st *store.Store, run *store.Run, journal *store.Journal, frames uint64, runErr error) {
	if st == nil || run == nil {
		return
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			log.Printf("framepipe: journal: %v", err)
		}
	}
	fault := ""
	if runErr != nil {
		fault = runErr.Error()
	}
	if err := st.Runs().Finish(run.ID, int64(frames), fault); err != nil {
		log.Printf("framepipe: failed to record run end: %v", err)
	}
}
