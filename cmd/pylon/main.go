// Copyright 2024 The Pylon Authors
// This file is part of the Pylon library.
//
// The Pylon library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Pylon library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Pylon library. If not, see <http://www.gnu.org/licenses/>.

// pylon is the sidecar process spec.md §1 describes: it maintains a
// fresh metagraph view, runs the commit/set weight submission cycle
// once per tempo, and exposes the HTTP surface of §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/opentensor/pylon/internal/bittensor"
	"github.com/opentensor/pylon/internal/httpapi"
	"github.com/opentensor/pylon/internal/log"
	"github.com/opentensor/pylon/internal/weights"
)

var (
	gitCommit = "" // set by -ldflags at build time, as in the teacher's cmd/berith
	app       = cli.NewApp()
)

func init() {
	app.Name = "pylon"
	app.Usage = "per-subnet sidecar: metagraph cache, weight submission cycle, authenticated HTTP API"
	app.Action = runServe
	app.Commands = []cli.Command{statusCommand}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Crit("pylon exited with error", "err", err)
		os.Exit(1)
	}
}

// newBackend constructs the Backend a production deployment would dial
// against. spec.md §1's Out-of-scope list names "the chain RPC library
// itself" as an external collaborator, so this process wires the same
// MockBackend used in tests rather than vendoring a real subtensor RPC
// client — a production build swaps this one function out.
func newBackend(hotkey bittensor.Hotkey) bittensor.Backend {
	return bittensor.NewMockBackend(hotkey)
}

// runner bundles the live components one identity needs: its pooled
// chain client, its periodic tasks, and (for the first configured
// identity only) the HTTP surface. Running every identity's Tasks in
// the same process lets one pylon binary automate weight submission
// for several wallets; only the first identity gets an HTTP listener,
// since spec.md frames pylon as "a per-subnet sidecar" (one API
// surface per process) rather than a multi-tenant API gateway — see
// DESIGN.md's Open Question decision on multi-identity wiring.
type runner struct {
	identity Identity
	client   bittensor.ChainClient
	cache    *bittensor.MetagraphCache
	state    *weights.AppState
	store    weights.Store
	tasks    *weights.Tasks
}

func runServe(c *cli.Context) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if settings.LogFormat == "json" {
		log.SetHandler(log.StreamHandler(os.Stderr, log.JSONFormat()))
	}
	if len(settings.Identities) == 0 {
		return fmt.Errorf("no identities configured: set PYLON_IDENTITIES")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool := bittensor.NewPool(func(ctx context.Context, key bittensor.WalletKey) (bittensor.ChainClient, error) {
		client := bittensor.NewClient(settings.Network, newBackend(bittensor.Hotkey(key.HotkeyName)))
		if err := client.Open(ctx); err != nil {
			return nil, err
		}
		return client, nil
	})
	defer func() {
		if err := pool.Close(context.Background()); err != nil {
			log.Warn("pool close failed", "err", err)
		}
	}()

	archiveClient := bittensor.NewClient(settings.ArchiveNetwork, newBackend(""))
	if err := archiveClient.Open(ctx); err != nil {
		return fmt.Errorf("opening archive client: %w", err)
	}
	defer archiveClient.Close(context.Background())

	runners := make([]*runner, 0, len(settings.Identities))
	for _, identity := range settings.Identities {
		r, err := buildRunner(ctx, settings, pool, archiveClient, identity)
		if err != nil {
			return fmt.Errorf("identity %s: %w", identity.Name, err)
		}
		runners = append(runners, r)

		var lastUpdate bittensor.BlockNumber
		if neurons, err := r.client.GetNeurons(ctx, identity.NetUid, nil); err != nil {
			log.Warn("reading own last_update failed, commit cycle starts from block 0", "identity", identity.Name, "err", err)
		} else {
			for _, n := range neurons {
				if n.Hotkey == bittensor.Hotkey(identity.HotkeyName) {
					lastUpdate = bittensor.BlockNumber(n.LastUpdate)
				}
			}
		}
		r.tasks.Start(ctx, lastUpdate)
		defer r.tasks.Stop()
	}

	primary := runners[0]
	server := &httpapi.Server{
		NetUid:       primary.identity.NetUid,
		WalletHotkey: bittensor.Hotkey(primary.identity.HotkeyName),
		Tempo:        settings.Tempo,
		Client:       primary.client,
		Cache:        primary.cache,
		Store:        primary.store,
		State:        primary.state,
		Retry:        settings.WeightsRetry,
		WeightsToken: primary.identity.Token,
		MetricsToken: settings.MetricsToken,
		Log:          log.New("component", "httpapi"),
	}
	httpServer := httpapi.NewHTTPServer(settings.ListenAddr, server)
	return httpapi.Serve(ctx, httpServer, log.New("component", "cmd.pylon"))
}

func buildRunner(ctx context.Context, settings *Settings, pool *bittensor.Pool, archiveClient bittensor.ChainClient, identity Identity) (*runner, error) {
	mainClient, _, err := pool.Acquire(ctx, bittensor.WalletKey{
		WalletName: identity.WalletName,
		HotkeyName: identity.HotkeyName,
		Path:       settings.WalletPath,
	})
	if err != nil {
		return nil, err
	}

	fallback := bittensor.NewArchiveFallbackClient(mainClient, archiveClient, settings.ArchiveCutoff)
	cache := bittensor.NewMetagraphCache(fallback, settings.MetagraphCacheMaxSize, settings.MetagraphCacheTTL)
	state := weights.NewAppState()
	store := weights.NewMemoryStore()

	tasks := weights.NewTasks(fallback, cache, state, identity.NetUid, weights.CommitCycleConfig{
		Tempo:             settings.Tempo,
		CommitCycleLength: settings.CommitCycleLength,
		WindowStartOffset: settings.CommitWindowStartOffset,
		WindowEndBuffer:   settings.CommitWindowEndBuffer,
	}, store, settings.WeightsRetry)

	return &runner{identity: identity, client: fallback, cache: cache, state: state, store: store, tasks: tasks}, nil
}

// statusCommand is the supplemented `pylon status` CLI feature from
// SPEC_FULL.md §4: a quick operational snapshot of the first
// identity's metagraph at the latest block, read through a freshly
// opened chain client (the metagraph cache is not consulted), grounded
// in the teacher's console.go/tablewriter pairing.
var statusCommand = cli.Command{
	Name:  "status",
	Usage: "print the latest metagraph for the first configured identity",
	Action: func(c *cli.Context) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		if len(settings.Identities) == 0 {
			return fmt.Errorf("no identities configured: set PYLON_IDENTITIES")
		}
		identity := settings.Identities[0]

		ctx := context.Background()
		backend := newBackend(bittensor.Hotkey(identity.HotkeyName))
		client := bittensor.NewClient(settings.Network, backend)
		if err := client.Open(ctx); err != nil {
			return err
		}
		defer client.Close(ctx)

		m, err := client.GetMetagraph(ctx, identity.NetUid, nil)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"UID", "Hotkey", "Stake", "Trust", "Rank", "Active"})
		for _, n := range m.Neurons {
			table.Append([]string{
				fmt.Sprintf("%d", n.UID),
				string(n.Hotkey),
				fmt.Sprintf("%.4f", n.Stake.Float64()),
				fmt.Sprintf("%.4f", n.Trust),
				fmt.Sprintf("%.4f", n.Rank),
				fmt.Sprintf("%v", n.Active),
			})
		}
		table.Render()
		return nil
	},
}
