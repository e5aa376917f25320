package main

import (
	"github.com/lunixbochs/objdwarf/go/cmd"

	_ "github.com/lunixbochs/objdwarf/go/cmd/ar"
	_ "github.com/lunixbochs/objdwarf/go/cmd/info"
	_ "github.com/lunixbochs/objdwarf/go/cmd/libs"
	_ "github.com/lunixbochs/objdwarf/go/cmd/lines"
	_ "github.com/lunixbochs/objdwarf/go/cmd/sections"
)

func main() { cmd.Main() }
