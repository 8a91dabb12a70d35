// Command replaydiff replays captured payloads against two endpoints.
package main

import "github.com/JakeFAU/replaydiff/cmd"

func main() {
	cmd.Execute()
}
