package programmer_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestProgrammer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Programmer Suite")
}
