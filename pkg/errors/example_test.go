package errors_test

import (
	"fmt"

	"github.com/DeBrosOfficial/collab/pkg/errors"
)

func ExampleNewConflictError() {
	err := errors.NewConflictError("build", "").WithMessage("a build is already in progress")
	fmt.Println(err.Error())
	fmt.Println(errors.IsConflict(err))
	// Output:
	// a build is already in progress
	// true
}

func ExampleWrap() {
	err := errors.Wrap(errors.NewNotFoundError("document", "pages/home"), "hydrate")
	fmt.Println(errors.CodeOf(err))
	fmt.Println(err)
	// Output:
	// NOT_FOUND
	// hydrate: document "pages/home" not found
}
