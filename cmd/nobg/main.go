// Management Console
package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/regorov/nobg"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

// EnvVarPrefix holds environment variables prefix related to application.
const (
	EnvVarPrefix = "NOBG_"
)

// BuildNumber is set at link time.
var BuildNumber = "dev"

func main() {

	app := cli.NewApp()
	app.Name = "nobg"
	app.Usage = "batch image background remover"
	app.Version = BuildNumber
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:   "debug, d",
			Usage:  "debug mode activation",
			EnvVar: EnvVarPrefix + "DEBUG",
		},
		cli.StringFlag{
			Name:   "pl",
			Usage:  "pprof HTTP listener",
			EnvVar: EnvVarPrefix + "PPROF_LISTENER",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "start",
			Aliases:   []string{"s"},
			Usage:     "remove background of the given images",
			ArgsUsage: "[image ...]",

			Action: start,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "input, i",
					Usage:  "plain text file with image paths, one per line",
					EnvVar: EnvVarPrefix + "INPUT",
				},
				cli.StringFlag{
					Name:   "output, o",
					Value:  ".",
					Usage:  "existing directory for processed images",
					EnvVar: EnvVarPrefix + "OUTPUT",
				},
				cli.StringFlag{
					Name:   "remover, r",
					Value:  "key",
					Usage:  "background remover: key (corner color keying) or rembg (rembg HTTP server)",
					EnvVar: EnvVarPrefix + "REMOVER",
				},
				cli.StringFlag{
					Name:   "rembg-url",
					Value:  "http://127.0.0.1:7000",
					Usage:  "rembg server base URL",
					EnvVar: EnvVarPrefix + "REMBG_URL",
				},
				cli.DurationFlag{
					Name:   "timeout",
					Value:  nobg.DefaultRequestTimeout,
					Usage:  "rembg request timeout",
					EnvVar: EnvVarPrefix + "TIMEOUT",
				},
				cli.IntFlag{
					Name:   "tolerance",
					Value:  nobg.DefaultTolerance,
					Usage:  "key color tolerance (0-255)",
					EnvVar: EnvVarPrefix + "TOLERANCE",
				},
				cli.IntFlag{
					Name:   "max-size",
					Value:  0,
					Usage:  "downsize images with longer edge before removal, 0 disables",
					EnvVar: EnvVarPrefix + "MAX_SIZE",
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func start(c *cli.Context) error {

	debug := c.GlobalBool("debug")

	// 1. logger format preparation.
	zerolog.TimeFieldFormat = "20060102T150405.999Z07:00"
	zerolog.TimestampFieldName = "t"
	zerolog.MessageFieldName = "msg"
	zerolog.LevelFieldName = "lvl"

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	logger.Info().Str("version", BuildNumber).Msg("application started")

	logger.Info().
		Bool("debug", debug).
		Str("input", c.String("input")).
		Str("output", c.String("output")).
		Str("remover", c.String("remover")).
		Int("max-size", c.Int("max-size")).
		Int("args", c.NArg()).
		Msg("launching params")

	// 2. runtime profiling activation.
	if c.GlobalIsSet("pl") {
		go func(listen string) {
			logger.Info().Str("pl", listen).Msg("start pprof http listener")
			if err := http.ListenAndServe(listen, nil); err != nil {
				logger.Error().Str("errmsg", err.Error()).Msg("pprof listener starting failed")
			}
		}(c.GlobalString("pl"))
	}

	// 3. Create objects.
	remover, err := newRemover(c, logger)
	if err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("remover creation failed")
		return err
	}
	session := nobg.NewSession(logger, remover)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Intake.
	session.Add(c.Args()...)
	if c.IsSet("input") {
		input := nobg.NewPathListInput(logger)
		if err := input.Start(ctx, c.String("input")); err != nil {
			logger.Error().Str("errmsg", err.Error()).Msg("input file open failed")
			return err
		}
		for p := range input.Next() {
			session.Add(p)
		}
	}

	// 5. SIGINT capture. The first signal stops the batch after the current
	// image, processed images are still saved.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT)
	go func() {
		<-stop
		logger.Info().Msg("signal SIGINT captured")
		session.Stop()
	}()

	// 6. Processing.
	started := time.Now()
	done, err := session.Process(ctx, func(ev nobg.Event) {
		switch e := ev.(type) {
		case nobg.ProgressChanged:
			logger.Info().Int("percent", e.Percent).Msg("progress")
		case nobg.BatchFinished:
			logger.Info().Int("succeeded", e.Succeeded).Int("failed", e.Failed).
				Bool("stopped", e.Stopped).Msg("batch finished")
		}
	})
	if err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("processing start failed")
		return err
	}
	<-done

	for _, rec := range session.Records() {
		if rec.Status() == nobg.Failed {
			logger.Warn().Str("path", rec.SourcePath()).Str("errmsg", rec.Error()).Msg("image failed")
		}
	}

	// 7. Export.
	saved, err := session.Save(c.String("output"))
	if errors.Is(err, nobg.ErrNothingToSave) {
		err = nil
	}
	if err != nil {
		logger.Error().Str("errmsg", err.Error()).Msg("saving failed")
	}

	st := session.Stats()
	logger.Info().Int("total", st.Total).Int("processed", st.Processed).Int("failed", st.Failed).
		Int("saved", saved).Str("dur", time.Since(started).String()).Msg("Completed")
	return err
}

func newRemover(c *cli.Context, l zerolog.Logger) (nobg.Remover, error) {
	var r nobg.Remover

	switch c.String("remover") {
	case "key":
		tol := c.Int("tolerance")
		if tol < 0 || tol > 255 {
			return nil, errors.New("tolerance must be in range 0-255")
		}
		r = nobg.NewKeyRemover(uint8(tol))
	case "rembg":
		hr := nobg.NewHTTPRemover(l, c.String("rembg-url"))
		hr.SetTimeout(c.Duration("timeout"))
		r = hr
	default:
		return nil, errors.New("unknown remover " + c.String("remover"))
	}

	if n := c.Int("max-size"); n > 0 {
		r = nobg.NewSizeLimiter(r, n)
	}
	return r, nil
}
