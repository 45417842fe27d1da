// Command rgctl formats, inspects and edits rgkit images.
package main

func main() {
	execute()
}
