// Package cli is the marketcore command line.
//
// Every command except version builds an app.Application from the merged
// configuration before it runs and closes it afterwards. Load, validate
// and export take files or a single directory; watch takes a directory.
// validate and export exit non-zero when the dataset has ERROR issues.
package cli
