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

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/opentensor/pylon/internal/bittensor"
	"github.com/opentensor/pylon/internal/weights"
)

// Identity is one `PYLON_ID_<NAME>_*` entry: a wallet/subnet pairing
// this process runs periodic weight tasks for; only the first
// configured identity is also served by the HTTP surface.
// spec.md §6 lists identities as a JSON name list plus per-name
// env vars; SPEC_FULL.md §2.2 loads each with its own viper instance so
// defaults and prefixes never bleed between identities.
type Identity struct {
	Name       string
	WalletName string
	HotkeyName string
	NetUid     bittensor.NetUid
	Token      string
}

// Settings is the immutable, process-wide configuration singleton
// spec.md §9 describes ("module-level settings singleton... no global
// mutation after init"). It is built exactly once in main() and handed
// by pointer to every constructor; nothing outside this file reads an
// environment variable.
type Settings struct {
	Network        string
	ArchiveNetwork string
	ArchiveCutoff  bittensor.BlockNumber

	WalletPath string

	Tempo                   uint16
	CommitCycleLength       bittensor.BlockNumber
	CommitWindowStartOffset bittensor.BlockNumber
	CommitWindowEndBuffer   bittensor.BlockNumber

	WeightsRetry weights.RetryConfig

	MetagraphCacheTTL     time.Duration
	MetagraphCacheMaxSize int

	MetricsToken string
	LogFormat    string

	ListenAddr string

	Identities []Identity
}

// loadSettings binds viper to the process environment with the
// PYLON_ prefix and populates Settings with spec.md §6's defaults,
// overridable by env var.
func loadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("PYLON")
	v.AutomaticEnv()

	v.SetDefault("BITTENSOR_NETWORK", "finney")
	v.SetDefault("BITTENSOR_ARCHIVE_NETWORK", "archive")
	v.SetDefault("BITTENSOR_ARCHIVE_BLOCKS_CUTOFF", bittensor.DefaultArchiveBlocksCutoff)
	v.SetDefault("TEMPO", 360)
	v.SetDefault("COMMIT_CYCLE_LENGTH", 3)
	v.SetDefault("COMMIT_WINDOW_START_OFFSET", 180)
	v.SetDefault("COMMIT_WINDOW_END_BUFFER", 10)
	v.SetDefault("WEIGHTS_RETRY_ATTEMPTS", 200)
	v.SetDefault("WEIGHTS_RETRY_DELAY_SECONDS", 1)
	v.SetDefault("METAGRAPH_CACHE_TTL", int(bittensor.DefaultCacheTTL.Seconds()))
	v.SetDefault("METAGRAPH_CACHE_MAXSIZE", bittensor.DefaultCacheSize)
	v.SetDefault("LOG_FORMAT", "terminal")
	v.SetDefault("LISTEN_ADDR", ":8000")

	s := &Settings{
		Network:                 v.GetString("BITTENSOR_NETWORK"),
		ArchiveNetwork:          v.GetString("BITTENSOR_ARCHIVE_NETWORK"),
		ArchiveCutoff:           bittensor.BlockNumber(v.GetInt64("BITTENSOR_ARCHIVE_BLOCKS_CUTOFF")),
		WalletPath:              v.GetString("BITTENSOR_WALLET_PATH"),
		Tempo:                   uint16(v.GetInt("TEMPO")),
		CommitCycleLength:       bittensor.BlockNumber(v.GetInt64("COMMIT_CYCLE_LENGTH")),
		CommitWindowStartOffset: bittensor.BlockNumber(v.GetInt64("COMMIT_WINDOW_START_OFFSET")),
		CommitWindowEndBuffer:   bittensor.BlockNumber(v.GetInt64("COMMIT_WINDOW_END_BUFFER")),
		WeightsRetry: weights.RetryConfig{
			Attempts:     v.GetInt("WEIGHTS_RETRY_ATTEMPTS"),
			InitialDelay: time.Duration(v.GetInt64("WEIGHTS_RETRY_DELAY_SECONDS")) * time.Second,
		},
		MetagraphCacheTTL:     time.Duration(v.GetInt64("METAGRAPH_CACHE_TTL")) * time.Second,
		MetagraphCacheMaxSize: v.GetInt("METAGRAPH_CACHE_MAXSIZE"),
		MetricsToken:          v.GetString("METRICS_TOKEN"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		ListenAddr:            v.GetString("LISTEN_ADDR"),
	}

	identities, err := loadIdentities(v)
	if err != nil {
		return nil, err
	}
	s.Identities = identities
	return s, nil
}

// loadIdentities parses PYLON_IDENTITIES (a JSON array of names) and,
// for each name, a dedicated viper instance scoped to the
// PYLON_ID_<NAME>_ prefix, per SPEC_FULL.md §2.2. Names should already
// be uppercase: viper's SetEnvPrefix uppercases whatever prefix it is
// given before looking the variable up, so "validator1" and
// "VALIDATOR1" would both resolve against PYLON_ID_VALIDATOR1_* — using
// the uppercase form in PYLON_IDENTITIES keeps the two forms aligned.
func loadIdentities(root *viper.Viper) ([]Identity, error) {
	raw := root.GetString("IDENTITIES")
	if raw == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("PYLON_IDENTITIES must be a JSON array of strings: %w", err)
	}

	identities := make([]Identity, 0, len(names))
	for _, name := range names {
		iv := viper.New()
		iv.SetEnvPrefix(fmt.Sprintf("PYLON_ID_%s", name))
		iv.AutomaticEnv()

		identities = append(identities, Identity{
			Name:       name,
			WalletName: iv.GetString("WALLET_NAME"),
			HotkeyName: iv.GetString("HOTKEY_NAME"),
			NetUid:     bittensor.NetUid(iv.GetInt("NETUID")),
			Token:      iv.GetString("TOKEN"),
		})
	}
	return identities, nil
}
