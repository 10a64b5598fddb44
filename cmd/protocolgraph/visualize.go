package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FairgateLabs/bitvmx-protocol-graph/pkg/protocol"
)

type visualizeCommand struct {
	rootFlags

	DOT   bool
	Debug bool

	cmd *cobra.Command
}

func newVisualizeCommand() *cobra.Command {
	cc := &visualizeCommand{}
	cc.cmd = &cobra.Command{
		Use:   "visualize",
		Short: "Render the protocol's transaction DAG as text or Graphviz DOT",
		RunE:  cc.Execute,
	}
	cc.register(cc.cmd)
	cc.cmd.Flags().BoolVar(&cc.DOT, "dot", false, "emit Graphviz DOT instead of a plain-text listing")
	cc.cmd.Flags().BoolVar(&cc.Debug, "debug", false, "append a full struct dump of each node (ignored with --dot)")
	return cc.cmd
}

func (c *visualizeCommand) Execute(_ *cobra.Command, _ []string) error {
	p, backend, closeFn, err := loadOrCreate(&c.rootFlags, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	out := p.Visualize(protocol.VisualizeOptions{DOT: c.DOT, Debug: c.Debug})
	fmt.Println(out)
	return nil
}
