//go:build gomock || generate

package rlnc

//go:generate sh -c "go run go.uber.org/mock/mockgen -build_flags=\"-tags=gomock\" -package rlnc -self_package github.com/overlaymesh/rlnc -destination mock_link_test.go github.com/overlaymesh/rlnc Link"
