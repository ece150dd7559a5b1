// Package money provides integer minor-unit amounts tagged with a wallet
// currency. Arithmetic is defined only between equal currencies and fails on
// int64 overflow; decimal major units are used only at the wire and display
// boundary.
package money
