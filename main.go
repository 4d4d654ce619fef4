// Package main provides the lider command line.
//
// lider walks the apartment listings of olx.uz in three stages:
//
//	lider collect   # gather listing links from the search pages
//	lider filter    # drop listings that mention unwanted keywords
//	lider enrich    # extract structured attributes with a local model
//
// lider run chains the three stages and lider export writes the result as CSV.
package main

func main() {
	Execute()
}
