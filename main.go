// Command remarkable-go is a CLI client for the reMarkable cloud: device
// registration, listing, upload, download, move, and delete of documents and
// folders.
package main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
