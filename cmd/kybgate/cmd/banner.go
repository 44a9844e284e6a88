package cmd

import (
	"fmt"
)

const banner = `
  _  ____   ______   ____       _
 | |/ /\ \ / / __ ) / ___| __ _| |_ ___
 | ' /  \ V /|  _ \| |  _ / _` + "`" + ` | __/ _ \
 | . \   | | | |_) | |_| | (_| | ||  __/
 |_|\_\  |_| |____/ \____|\__,_|\__\___|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  KYB Verification Gateway - Version %s\x1b[0m\n\n", Version)
}
