package builtin

import (
	"fmt"

	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/function"
)

func unsupported(name string, ref function.IORef) error {
	return &cosimerr.UnsupportedFeature{
		Feature: fmt.Sprintf("%s does not expose io at group %d io %d", name, ref.Group, ref.IO),
	}
}
