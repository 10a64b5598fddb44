package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
)

// --- add-p2wpkh-output ---

type addP2WPKHOutputCommand struct {
	rootFlags

	Transaction string
	Value       int64
	PubKeyHex   string

	cmd *cobra.Command
}

func newAddP2WPKHOutputCommand() *cobra.Command {
	cc := &addP2WPKHOutputCommand{}
	cc.cmd = &cobra.Command{
		Use:   "add-p2wpkh-output",
		Short: "Add a pay-to-witness-pubkey-hash output to a transaction",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.Transaction, "transaction", "", "node to add the output to (required)")
	cc.cmd.Flags().Int64Var(&cc.Value, "value", 0, "value, in satoshis")
	cc.cmd.Flags().StringVar(&cc.PubKeyHex, "pubkey", "", "hex-encoded compressed public key (required)")
	_ = cc.cmd.MarkFlagRequired("transaction")
	_ = cc.cmd.MarkFlagRequired("pubkey")
	return cc.cmd
}

func (c *addP2WPKHOutputCommand) Execute(_ *cobra.Command, _ []string) error {
	key, err := parseCompressedPubKey(c.PubKeyHex)
	if err != nil {
		return err
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	idx, err := p.AddP2WPKHOutput(c.Transaction, btcutil.Amount(c.Value), key)
	if err != nil {
		return fmt.Errorf("add-p2wpkh-output: %w", err)
	}

	log.Infof("added p2wpkh output %d to %s", idx, c.Transaction)
	return p.Save(backend)
}

// --- add-speedup-output ---

type addSpeedupOutputCommand struct {
	rootFlags

	Transaction string
	Value       int64
	PubKeyHex   string

	cmd *cobra.Command
}

func newAddSpeedupOutputCommand() *cobra.Command {
	cc := &addSpeedupOutputCommand{}
	cc.cmd = &cobra.Command{
		Use:   "add-speedup-output",
		Short: "Reserve a CPFP-bumpable anchor output on a transaction",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().StringVar(&cc.Transaction, "transaction", "", "node to add the speedup output to (required)")
	cc.cmd.Flags().Int64Var(&cc.Value, "value", 0, "value, in satoshis")
	cc.cmd.Flags().StringVar(&cc.PubKeyHex, "pubkey", "", "hex-encoded compressed public key authorized to bump fees (required)")
	_ = cc.cmd.MarkFlagRequired("transaction")
	_ = cc.cmd.MarkFlagRequired("pubkey")
	return cc.cmd
}

func (c *addSpeedupOutputCommand) Execute(_ *cobra.Command, _ []string) error {
	key, err := parseCompressedPubKey(c.PubKeyHex)
	if err != nil {
		return err
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	idx, err := p.AddSpeedupOutput(c.Transaction, btcutil.Amount(c.Value), key)
	if err != nil {
		return fmt.Errorf("add-speedup-output: %w", err)
	}

	log.Infof("added speedup output %d to %s", idx, c.Transaction)
	return p.Save(backend)
}

func parseCompressedPubKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey: %w", err)
	}
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey: %w", err)
	}
	return key, nil
}
