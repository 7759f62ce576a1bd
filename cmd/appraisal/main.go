// Command appraisal runs the resale appraisal service: an HTTP backend with
// -serve, a one-shot pipeline run with -analyze, or an environment check
// with -preflight.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"appraisal/pkg/agent"
	"appraisal/pkg/config"
	"appraisal/pkg/logx"
	"appraisal/pkg/mapper"
	"appraisal/pkg/persistence"
	"appraisal/pkg/pipeline"
	"appraisal/pkg/shops"
	"appraisal/pkg/swarm"
	"appraisal/pkg/utils"
	"appraisal/pkg/webui"
)

func main() {
	var (
		serve     bool
		analyze   string
		ll        string
		preflight bool
	)
	flag.BoolVar(&serve, "serve", false, "Run the HTTP backend")
	flag.StringVar(&analyze, "analyze", "", "Run the pipeline once over an image file and print the result")
	flag.StringVar(&ll, "ll", config.DefaultCoordinates, "Coordinates for -analyze as @lat,lng")
	flag.BoolVar(&preflight, "preflight", false, "Validate credentials and provider connectivity")
	flag.Parse()

	if err := unlockSecrets(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unlock secrets: %v\n", err)
		os.Exit(1)
	}

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case preflight:
		os.Exit(runPreflight(settings))
	case analyze != "":
		if err := runAnalyze(settings, analyze, ll); err != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
			os.Exit(1)
		}
	case serve:
		if err := runServe(settings); err != nil {
			fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// unlockSecrets decrypts the local secrets file when one exists and stdin
// is a terminal. Without a terminal the environment is the only source.
func unlockSecrets() error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	if !config.SecretsFileExists(dir) {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Secrets file present but stdin is not a terminal; using environment only")
		return nil
	}

	fmt.Fprint(os.Stderr, "Secrets password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	secrets, err := config.DecryptSecretsFile(dir, string(password))
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

func runServe(settings *config.Settings) error {
	logger := logx.NewLogger("main")

	if err := persistence.Initialize(settings.DBPath); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Error("Closing database: %v", err)
		}
	}()

	factory := agent.NewLLMClientFactory(settings)
	finder := shops.NewClient(settings.SearchAPIKey, settings.SearchAPIBase, settings.RadiusMiles)
	server := webui.NewServer(settings, factory, persistence.Ops(), finder, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.StartServer(ctx, settings.ListenAddr)
}

// runAnalyze executes the pipeline once over a local image and prints the
// mapped response as indented JSON. Nothing is persisted.
func runAnalyze(settings *config.Settings, path, coordinates string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	mime, err := utils.DetectImageMIME(image, path)
	if err != nil {
		return err
	}

	factory := agent.NewLLMClientFactory(settings)
	tracker := pipeline.NewRunTracker()

	vision, err := factory.CreateClientWithRun(agent.RoleVision, tracker)
	if err != nil {
		return err
	}
	swarmClient, err := factory.CreateClientWithRun(agent.RoleSwarm, tracker)
	if err != nil {
		return err
	}
	synthesis, err := factory.CreateClientWithRun(agent.RoleSynthesis, tracker)
	if err != nil {
		return err
	}

	recorder := factory.Recorder()
	coordinator := swarm.NewCoordinator(swarmClient, recorder)
	finder := shops.NewClient(settings.SearchAPIKey, settings.SearchAPIBase, settings.RadiusMiles)

	runner, err := pipeline.NewRunner(vision, synthesis, coordinator, finder, tracker, recorder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := runner.Run(ctx, pipeline.Input{
		AnalysisID:  uuid.NewString(),
		Image:       image,
		MIME:        mime,
		Coordinates: coordinates,
	})
	if err != nil {
		return err
	}

	resp := mapper.Map(rec, "")
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
