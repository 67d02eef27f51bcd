// Package utils contains utility functions that currently have no better home
// than here: parallelism helpers, small math helpers, and distance metrics.
package utils
