package image

import (
	"fmt"

	"github.com/tinytalk/tinytalk/pkg/objmodel"
)

// bootstrap builds the built-in class hierarchy spec.md §4.8 lists and
// installs their primitives, then pins the singleton nil/true/false
// instances and wires the VM's cached class/symbol fields so dispatch
// and GC can find them without a global-scope lookup.
func (img *Image) bootstrap() {
	v := img.vm

	object := v.NewClass(nil, v.InternSymbol("Object"), nil)
	undefinedObject := v.NewClass(object, v.InternSymbol("UndefinedObject"), nil)
	boolean := v.NewClass(object, v.InternSymbol("Boolean"), nil)
	trueClass := v.NewClass(boolean, v.InternSymbol("True"), nil)
	falseClass := v.NewClass(boolean, v.InternSymbol("False"), nil)
	integer := v.NewClass(object, v.InternSymbol("Integer"), nil)
	array := v.NewClass(object, v.InternSymbol("Array"), nil)
	array.Variable = true
	symbolClass := v.NewClass(object, v.InternSymbol("Symbol"), nil)
	messageNotUnderstood := v.NewClass(object, v.InternSymbol("MessageNotUnderstood"), []string{"selector"})

	v.SymbolClass = symbolClass
	v.IntegerClass = integer
	v.ArrayClass = array
	v.MessageNotUnderstoodClass = messageNotUnderstood
	v.DoesNotUnderstand = v.InternSymbol("doesNotUnderstand:")

	// nil/true/false are plain zero-ivar instances of their singleton
	// classes, pinned PRESERVE so the collector never reclaims them even
	// though nothing on the stack or in globals may reference them at a
	// given instant.
	nilRef, err := v.NewInstance(undefinedObject)
	if err != nil {
		panic(fmt.Sprintf("image: bootstrap nil: %v", err))
	}
	v.NilValue = nilRef
	v.GCPreserve(nilRef)

	trueRef, err := v.NewInstance(trueClass)
	if err != nil {
		panic(fmt.Sprintf("image: bootstrap true: %v", err))
	}
	v.TrueValue = trueRef
	v.GCPreserve(trueRef)

	falseRef, err := v.NewInstance(falseClass)
	if err != nil {
		panic(fmt.Sprintf("image: bootstrap false: %v", err))
	}
	v.FalseValue = falseRef
	v.GCPreserve(falseRef)

	img.installObjectPrimitives(object)
	img.installBooleanPrimitives(trueClass, falseClass)
	img.installIntegerPrimitives(integer)
	img.installArrayPrimitives(array)
}

func (img *Image) installObjectPrimitives(object *objmodel.Class) {
	v := img.vm

	img.SetPrimitiveMethod(object, v.InternSymbol("new"), primNew, 0)
	img.SetPrimitiveMethod(object, v.InternSymbol("class"), primClass, 0)
	img.SetPrimitiveMethod(object, v.InternSymbol("subclass:"), primSubclass, 1)
	img.SetPrimitiveMethod(object, v.InternSymbol("subclass:instanceVariableNames:classVariableNames:"),
		primSubclassWithIvars, 3)
	img.SetPrimitiveMethod(object, v.DoesNotUnderstand, primDefaultDoesNotUnderstand, 1)
}

func (img *Image) installBooleanPrimitives(trueClass, falseClass *objmodel.Class) {
	v := img.vm
	ifTrue := v.InternSymbol("ifTrue:")
	ifFalse := v.InternSymbol("ifFalse:")
	value := v.InternSymbol("value")

	img.SetPrimitiveMethod(trueClass, ifTrue, func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		return env.Send(args[0], value, nil)
	}, 1)
	img.SetPrimitiveMethod(trueClass, ifFalse, primAnswerNil, 1)

	img.SetPrimitiveMethod(falseClass, ifTrue, primAnswerNil, 1)
	img.SetPrimitiveMethod(falseClass, ifFalse, func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		return env.Send(args[0], value, nil)
	}, 1)
}

func (img *Image) installIntegerPrimitives(integer *objmodel.Class) {
	v := img.vm

	arith := func(op func(a, b int32) (int32, bool)) objmodel.PrimitiveFn {
		return func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
			a, ok := env.RawInt(receiver)
			if !ok {
				return env.Nil(), nil
			}
			b, ok := env.RawInt(args[0])
			if !ok {
				return env.Nil(), nil
			}
			result, ok := op(a, b)
			if !ok {
				return env.Nil(), nil
			}
			return env.NewInt(result)
		}
	}

	img.SetPrimitiveMethod(integer, v.InternSymbol("+"), arith(func(a, b int32) (int32, bool) { return a + b, true }), 1)
	img.SetPrimitiveMethod(integer, v.InternSymbol("-"), arith(func(a, b int32) (int32, bool) { return a - b, true }), 1)
	img.SetPrimitiveMethod(integer, v.InternSymbol("*"), arith(func(a, b int32) (int32, bool) { return a * b, true }), 1)
	img.SetPrimitiveMethod(integer, v.InternSymbol("/"), arith(func(a, b int32) (int32, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}), 1)

	img.SetPrimitiveMethod(integer, v.InternSymbol("rawGet"), func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		return receiver, nil
	}, 0)
	img.SetPrimitiveMethod(integer, v.InternSymbol("rawSet:"), func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		n, ok := env.RawInt(args[0])
		if !ok || !env.SetRawInt(receiver, n) {
			return env.Nil(), nil
		}
		return receiver, nil
	}, 1)
}

func (img *Image) installArrayPrimitives(array *objmodel.Class) {
	v := img.vm

	img.SetPrimitiveMethod(array, v.InternSymbol("at:"), func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		idx, ok := env.RawInt(args[0])
		if !ok {
			return env.Nil(), nil
		}
		i := int(idx) - 1 // Smalltalk arrays are one-indexed
		if i < 0 || i >= env.IvarCount(receiver) {
			return env.Nil(), nil
		}
		return env.GetIvar(receiver, i), nil
	}, 1)

	img.SetPrimitiveMethod(array, v.InternSymbol("at:put:"), func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		idx, ok := env.RawInt(args[0])
		if !ok {
			return env.Nil(), nil
		}
		i := int(idx) - 1
		if i < 0 || i >= env.IvarCount(receiver) {
			return env.Nil(), nil
		}
		env.SetIvar(receiver, i, args[1])
		return args[1], nil
	}, 2)

	img.SetPrimitiveMethod(array, v.InternSymbol("length"), func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		return env.NewInt(int32(env.IvarCount(receiver)))
	}, 0)

	img.SetPrimitiveMethod(array, v.InternSymbol("new:"), func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
		n, ok := env.RawInt(args[0])
		if !ok || n < 0 {
			return env.Nil(), nil
		}
		return env.NewArray(int(n))
	}, 1)
}

func primNew(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
	if receiver.Kind != objmodel.KindClass {
		return env.Nil(), nil
	}
	return env.NewInstance(receiver.Class)
}

func primClass(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
	return objmodel.ClassRef(env.ClassOf(receiver)), nil
}

func primSubclass(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
	if receiver.Kind != objmodel.KindClass || args[0].Kind != objmodel.KindSymbol {
		return env.Nil(), nil
	}
	return objmodel.ClassRef(env.NewClass(receiver.Class, args[0].Sym, nil)), nil
}

func primSubclassWithIvars(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
	if receiver.Kind != objmodel.KindClass || args[0].Kind != objmodel.KindSymbol {
		return env.Nil(), nil
	}
	ivarNames := symbolArrayNames(env, args[1])
	newClass := env.NewClass(receiver.Class, args[0].Sym, ivarNames)
	for _, cvarName := range symbolArrayNames(env, args[2]) {
		if newClass.ClassVars == nil {
			newClass.ClassVars = make(map[*objmodel.Symbol]objmodel.Ref)
		}
		newClass.ClassVars[env.InternSymbol(cvarName)] = env.Nil()
	}
	return objmodel.ClassRef(newClass), nil
}

// symbolArrayNames reads an Array of Symbol refs into their name strings,
// skipping any element that isn't a Symbol. instanceVariableNames:/
// classVariableNames: take an Array of Symbols rather than a
// space-separated String, since String is not among the built-in classes
// spec.md §4.8 lists.
func symbolArrayNames(env objmodel.Env, arrayRef objmodel.Ref) []string {
	n := env.IvarCount(arrayRef)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		elem := env.GetIvar(arrayRef, i)
		if elem.Kind == objmodel.KindSymbol && elem.Sym != nil {
			names = append(names, elem.Sym.Name)
		}
	}
	return names
}

func primAnswerNil(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
	return env.Nil(), nil
}

// primDefaultDoesNotUnderstand is the baseline doesNotUnderstand: every
// image gets for free (spec.md only requires the hook exist and be
// invoked; a class can still shadow this with its own). It reports the
// failing selector recorded on the MessageNotUnderstood instance by
// pkg/vm's dispatch path.
func primDefaultDoesNotUnderstand(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
	selectorName := "?"
	if len(args) == 1 {
		if sel := env.GetIvar(args[0], 0); sel.Kind == objmodel.KindSymbol && sel.Sym != nil {
			selectorName = sel.Sym.Name
		}
	}
	className := "?"
	if class := env.ClassOf(receiver); class != nil && class.Name != nil {
		className = class.Name.Name
	}
	return objmodel.Ref{}, fmt.Errorf("%s does not understand #%s", className, selectorName)
}
