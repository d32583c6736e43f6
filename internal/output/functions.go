package output

import (
	"fmt"
)

func PrintSuccess(text string) {
	fmt.Println(successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Println(errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Println(warningStyle.Render(text))
}
func PrintInfo(text string) {
	fmt.Println(infoStyle.Render(text))
}
func PrintHeader(text string) {
	fmt.Println(headerStyle.Render(text))
}

// PrintField prints an indented "key: value" line.
func PrintField(key, value string) {
	fmt.Printf("  %s %s\n", detailStyle.Render(key+":"), debugStyle.Render(value))
}
