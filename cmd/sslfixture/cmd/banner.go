package cmd

import (
	"fmt"
	"io"
)

const banner = `
           _  __ _      _
  ___ ___| |/ _(_)_  _| |_ _  _ _ _ ___
 (_-<(_-<| |  _| \ \ /  _| || | '_/ -_)
 /__//__/|_|_| |_/_\_\\__|\_,_|_| \___|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  PKI fixture generator - Version %s\x1b[0m\n\n", Version)
}
