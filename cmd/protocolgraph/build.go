package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type buildCommand struct {
	rootFlags
	sign bool
	cmd  *cobra.Command
}

func newBuildCommand() *cobra.Command {
	return newBuildLikeCommand(false, "build",
		"Run the two-pass build pipeline without signing")
}

func newBuildAndSignCommand() *cobra.Command {
	return newBuildLikeCommand(true, "build-and-sign",
		"Run the two-pass build pipeline and sign every selected branch")
}

func newBuildLikeCommand(sign bool, use, short string) *cobra.Command {
	cc := &buildCommand{sign: sign}
	cc.cmd = &cobra.Command{
		Use:   use,
		Short: short,
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	return cc.cmd
}

// Execute loads the key manager unconditionally: even the hash-only
// Build() pass may need it to open a MuSig2 nonce round for any input
// whose spend mode selects SignAggregate (§4.4).
func (c *buildCommand) Execute(_ *cobra.Command, _ []string) error {
	km, err := newKeyManager()
	if err != nil {
		return err
	}

	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, km)
	if err != nil {
		return err
	}
	defer closeFn()

	if c.sign {
		if err := p.BuildAndSign(); err != nil {
			return fmt.Errorf("build and sign %q: %w", c.ProtocolName, err)
		}
		log.Infof("built and signed protocol %q", c.ProtocolName)
	} else {
		if err := p.Build(); err != nil {
			return fmt.Errorf("build %q: %w", c.ProtocolName, err)
		}
		log.Infof("built protocol %q", c.ProtocolName)
	}

	if err := p.Save(backend); err != nil {
		return fmt.Errorf("save %q: %w", c.ProtocolName, err)
	}
	return nil
}
