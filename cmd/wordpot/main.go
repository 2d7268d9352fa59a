package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/wordpot/engine/internal/core"
	"github.com/wordpot/engine/internal/engine"
	"github.com/wordpot/engine/internal/settlement"
	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/model"
)

// --- CLI definitions --- //

type CLI struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`

	Run     RunCmd     `cmd:"" help:"Run the settlement worker."`
	Open    OpenCmd    `cmd:"" help:"Open a new round."`
	Resolve ResolveCmd `cmd:"" help:"Resolve the round for a winner."`
	Cancel  CancelCmd  `cmd:"" help:"Cancel the active round."`
	Submit  SubmitCmd  `cmd:"" help:"Submit a guess."`
	Reveal  RevealCmd  `cmd:"" help:"Reveal a finished round's words."`
	Status  StatusCmd  `cmd:"" help:"Show the active round."`
}

type RunCmd struct{}

type OpenCmd struct {
	Jackpot    string `help:"Fresh jackpot funding in wei." name:"jackpot" xor:"funding" required:""`
	JackpotUsd string `help:"Fresh jackpot funding in USD, converted at the oracle rate." name:"jackpot-usd" xor:"funding" required:""`
	Word       string `help:"Fix the secret word instead of drawing one." name:"word"`
}

type ResolveCmd struct {
	Round  string `help:"Round id." required:"" name:"round"`
	Winner int64  `help:"Winning account id." required:"" name:"winner"`
}

type CancelCmd struct {
	Round string `help:"Round id." required:"" name:"round"`
}

type SubmitCmd struct {
	Account int64  `help:"Account id." required:"" name:"account"`
	Word    string `help:"The guessed word." required:"" arg:""`
}

type RevealCmd struct {
	Round string `help:"Round id." required:"" name:"round"`
}

type StatusCmd struct{}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wordpot"),
		kong.Description("Daily word-pot competition engine."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func newEngine(cli *CLI) *engine.Engine {
	cfg, err := core.Load(cli.ConfigPath)
	if err != nil {
		slog.Error("Load config failed", "err", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})

	eng, err := engine.New(cfg, engine.Options{
		Settler: settlement.LogSettler{},
	})
	if err != nil {
		logger.Fatal("Wire engine failed", "err", err)
	}
	return eng
}

func (c *RunCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.RunSettlement(ctx) }()

	logger.Info("Settlement worker is running... Press Ctrl+C to stop")
	waitForShutdown()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Stopped")
	return nil
}

func (c *OpenCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()

	var (
		rd  *model.Round
		err error
	)
	if c.JackpotUsd != "" {
		rd, err = eng.OpenRoundUsd(context.Background(), c.JackpotUsd, c.Word)
	} else {
		rd, err = eng.OpenRound(context.Background(), c.Jackpot, c.Word)
	}
	if err != nil {
		return err
	}
	return printJSON(rd)
}

func (c *ResolveCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()

	res, err := eng.ResolveRound(context.Background(), c.Round, c.Winner)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (c *CancelCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()
	return eng.CancelRound(context.Background(), c.Round)
}

func (c *SubmitCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()

	res, err := eng.SubmitGuess(context.Background(), c.Account, c.Word)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (c *RevealCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()

	words, err := eng.Reveal(context.Background(), c.Round)
	if err != nil {
		return err
	}
	return printJSON(words)
}

func (c *StatusCmd) Run(cli *CLI) error {
	eng := newEngine(cli)
	defer eng.Close()

	rd, err := eng.ActiveRound(context.Background())
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("no active round")
		return nil
	}
	if err != nil {
		return err
	}
	return printJSON(rd)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func waitForShutdown() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
