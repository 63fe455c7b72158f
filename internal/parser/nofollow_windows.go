//go:build windows

package parser

// Windows has no O_NOFOLLOW; discovery's containment check is
// the only guard there.
const noFollow = 0
