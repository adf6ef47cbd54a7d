// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"time"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/node"
	"github.com/klaytn/hnode/party"
)

// fileConfig is the on-disk shape read and written by the config
// dump/load supplemented feature (SPEC_FULL §12), mirroring the
// teacher's dumpconfigcmd pattern of a TOML-serializable mirror of the
// flag-driven run options.
type fileConfig struct {
	Host    string
	Port    int
	Peers   []string
	APIHost string
	APIPort int

	MonitoringPort int

	PersistenceDir     string
	PersistenceBackend string
	RollbackHistory    int

	Verbosity int

	ChainConfig      string
	LedgerConfig     string
	HydraScriptsTxId string

	OwnKeyHex          string
	OtherPartiesHex    []string
	ContestationPeriod time.Duration
	ReqTxTTL           int
}

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML config file to load run options from (values set in the file override flags)",
}

var dumpConfigCommand = cli.Command{
	Name:   "dumpconfig",
	Usage:  "Show the run options that would be used, as TOML",
	Action: dumpConfig,
	Flags:  runFlags,
}

func dumpConfig(ctx *cli.Context) error {
	opts, err := optionsFromContext(ctx)
	if err != nil {
		return err
	}
	fc := toFileConfig(opts)
	data, err := toml.Marshal(fc)
	if err != nil {
		return errors.Wrap(err, "hnode: failed to marshal config")
	}
	_, err = os.Stdout.Write(data)
	return err
}

func toFileConfig(opts node.RunOptions) fileConfig {
	otherHex := make([]string, len(opts.OtherParties))
	for i, p := range opts.OtherParties {
		otherHex[i] = hex.EncodeToString(p.VKey)
	}
	return fileConfig{
		Host:               opts.Host,
		Port:               opts.Port,
		Peers:              opts.Peers,
		APIHost:            opts.APIHost,
		APIPort:            opts.APIPort,
		MonitoringPort:     opts.MonitoringPort,
		PersistenceDir:     opts.PersistenceDir,
		PersistenceBackend: opts.PersistenceBackend,
		RollbackHistory:    opts.RollbackHistory,
		Verbosity:          opts.Verbosity,
		ChainConfig:        opts.ChainConfig,
		LedgerConfig:       opts.LedgerConfig,
		HydraScriptsTxId:   opts.HydraScriptsTxId,
		OwnKeyHex:          hex.EncodeToString(opts.OwnKey.Private),
		OtherPartiesHex:    otherHex,
		ContestationPeriod: opts.ContestationPeriod,
		ReqTxTTL:           opts.ReqTxTTL,
	}
}

// loadFileConfig reads a TOML config file written by dumpconfig (or
// hand-edited) into a fileConfig; fields left at their zero value do not
// override the corresponding flag default.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fc, errors.Wrapf(err, "hnode: failed to read config file %s", path)
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, errors.Wrapf(err, "hnode: failed to parse config file %s", path)
	}
	return fc, nil
}

func applyFileConfig(opts *node.RunOptions, fc fileConfig) error {
	if fc.Host != "" {
		opts.Host = fc.Host
	}
	if fc.Port != 0 {
		opts.Port = fc.Port
	}
	if len(fc.Peers) > 0 {
		opts.Peers = fc.Peers
	}
	if fc.APIHost != "" {
		opts.APIHost = fc.APIHost
	}
	if fc.APIPort != 0 {
		opts.APIPort = fc.APIPort
	}
	if fc.MonitoringPort != 0 {
		opts.MonitoringPort = fc.MonitoringPort
	}
	if fc.PersistenceDir != "" {
		opts.PersistenceDir = fc.PersistenceDir
	}
	if fc.PersistenceBackend != "" {
		opts.PersistenceBackend = fc.PersistenceBackend
	}
	if fc.RollbackHistory != 0 {
		opts.RollbackHistory = fc.RollbackHistory
	}
	if fc.Verbosity != 0 {
		opts.Verbosity = fc.Verbosity
	}
	if fc.ChainConfig != "" {
		opts.ChainConfig = fc.ChainConfig
	}
	if fc.LedgerConfig != "" {
		opts.LedgerConfig = fc.LedgerConfig
	}
	if fc.HydraScriptsTxId != "" {
		opts.HydraScriptsTxId = fc.HydraScriptsTxId
	}
	if fc.ContestationPeriod != 0 {
		opts.ContestationPeriod = fc.ContestationPeriod
	}
	if fc.ReqTxTTL != 0 {
		opts.ReqTxTTL = fc.ReqTxTTL
	}
	if fc.OwnKeyHex != "" {
		priv, err := hex.DecodeString(fc.OwnKeyHex)
		if err != nil {
			return errors.Wrap(err, "hnode: invalid own key in config file")
		}
		opts.OwnKey = crypto.KeyPair{Private: priv, Public: priv[32:]}
	}
	if len(fc.OtherPartiesHex) > 0 {
		parties := make([]party.Party, len(fc.OtherPartiesHex))
		for i, h := range fc.OtherPartiesHex {
			vkey, err := hex.DecodeString(h)
			if err != nil {
				return errors.Wrap(err, "hnode: invalid peer verification key in config file")
			}
			parties[i] = party.Party{VKey: party.VerificationKey(vkey)}
		}
		opts.OtherParties = parties
	}
	return nil
}
