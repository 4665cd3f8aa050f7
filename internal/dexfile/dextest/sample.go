package dextest

import "dexlens/internal/dexfile"

// SampleIDs names the indices of everything Sample defines.
type SampleIDs struct {
	Main, Helper, Object uint32 // types

	Tag, Count uint32 // fields

	Init, MainM, Log, NativeHash, Run, ObjectInit uint32 // methods

	Hello, LogPrefix, Jumbo uint32 // strings

	// Offsets of the methods' code items.
	InitCode, MainCode, LogCode, RunCode uint32
}

// Sample builds a two-class file exercising class data, annotations,
// static values and every reference kind the scanner collects:
//
//	class Main {
//	    @Keep static String TAG = "main";
//	    int count;
//	    Main()                     { super(); }
//	    @Entry static void main(String[] a) { "hello"; TAG; log(); count = ... }
//	    static void log(@Name String s)     { "log:"; switch { ... } }
//	    native long nativeHash(int x);
//	}
//	class Helper { void run() { "jumbo"; Main.log(); } }
func Sample() ([]byte, SampleIDs) {
	b := New()
	var id SampleIDs

	id.Main = b.Type("Lcom/example/Main;")
	id.Helper = b.Type("Lcom/example/Helper;")
	id.Object = b.Type("Ljava/lang/Object;")
	keep := b.Type("Lcom/example/Keep;")
	entry := b.Type("Lcom/example/Entry;")
	name := b.Type("Lcom/example/Name;")
	valueName := b.String("value")

	id.Tag = b.Field("Lcom/example/Main;", "Ljava/lang/String;", "TAG")
	id.Count = b.Field("Lcom/example/Main;", "I", "count")

	id.ObjectInit = b.Method("Ljava/lang/Object;", "<init>", "V")
	id.Init = b.Method("Lcom/example/Main;", "<init>", "V")
	id.MainM = b.Method("Lcom/example/Main;", "main", "V", "[Ljava/lang/String;")
	id.Log = b.Method("Lcom/example/Main;", "log", "V", "Ljava/lang/String;")
	id.NativeHash = b.Method("Lcom/example/Main;", "nativeHash", "J", "I")
	id.Run = b.Method("Lcom/example/Helper;", "run", "V")

	id.Hello = b.String("hello")
	id.LogPrefix = b.String("log:")
	id.Jumbo = b.String("jumbo")
	mainStr := b.String("main")

	id.InitCode = b.Data(Code(1, 1, 1,
		0x1070, uint16(id.ObjectInit), 0x0000, // invoke-direct {v0}, Object.<init>
		0x000e,                                // return-void
	))
	id.MainCode = b.Data(Code(3, 1, 1,
		0x001a, uint16(id.Hello),       // const-string v0, "hello"
		0x0162, uint16(id.Tag),         // sget-object v1, TAG
		0x1071, uint16(id.Log), 0x0000, // invoke-static {v0}, log
		0x2159, uint16(id.Count),       // iput v1, v2, count
		0x000e,                         // return-void
	))
	id.LogCode = b.Data(Code(2, 1, 0,
		0x011a, uint16(id.LogPrefix), // const-string v1, "log:"
		0x002b, 0x0004, 0x0000,       // packed-switch v0, +4
		0x000e,                       // return-void
		0x0100, 0x0002, 0, 0,         // packed-switch payload, two targets
		0x0003, 0x0000, 0x0003, 0x0000,
	))
	id.RunCode = b.Data(Code(1, 1, 0,
		0x001b, uint16(id.Jumbo), uint16(id.Jumbo>>16), // const-string/jumbo v0, "jumbo"
		0x1071, uint16(id.Log), 0x0000,                 // invoke-static {v0}, log
		0x000e,                                         // return-void
	))

	keepSet := b.Data(OffsetList(b.Data(AnnotationItem(dexfile.VisibilityRuntime, keep))))
	entrySet := b.Data(OffsetList(b.Data(AnnotationItem(dexfile.VisibilityBuild, entry,
		Element{Name: valueName, Value: Array(Value(VString, byte(id.Hello)), Annotation(keep))},
	))))
	nameSet := b.Data(OffsetList(b.Data(AnnotationItem(dexfile.VisibilityRuntime, name,
		Element{Name: valueName, Value: Value(VString, byte(id.LogPrefix))},
	))))
	paramRefs := b.Data(OffsetList(nameSet))

	main := ClassDefFor(id.Main)
	main.AccessFlags = dexfile.AccPublic
	main.SuperclassIdx = id.Object
	main.ClassDataOff = b.Data(ClassData(
		[]FieldEntry{{Idx: id.Tag, Flags: dexfile.AccStatic | dexfile.AccPublic}},
		[]FieldEntry{{Idx: id.Count, Flags: dexfile.AccPrivate}},
		[]MethodEntry{
			{Idx: id.Init, Flags: dexfile.AccPublic | dexfile.AccConstructor, CodeOff: id.InitCode},
			{Idx: id.MainM, Flags: dexfile.AccPublic | dexfile.AccStatic, CodeOff: id.MainCode},
			{Idx: id.Log, Flags: dexfile.AccStatic, CodeOff: id.LogCode},
		},
		[]MethodEntry{{Idx: id.NativeHash, Flags: dexfile.AccPublic | dexfile.AccNative}},
	))
	main.AnnotationsOff = b.Data(AnnotationsDirectory(0,
		[]dexfile.MemberAnnotations{{Idx: id.Tag, Off: keepSet}},
		[]dexfile.MemberAnnotations{{Idx: id.MainM, Off: entrySet}},
		[]dexfile.MemberAnnotations{{Idx: id.Log, Off: paramRefs}},
	))
	main.StaticValuesOff = b.Data(EncodedArray(Value(VString, byte(mainStr))))
	b.Class(main)

	helper := ClassDefFor(id.Helper)
	helper.SuperclassIdx = id.Object
	helper.ClassDataOff = b.Data(ClassData(nil, nil, nil,
		[]MethodEntry{{Idx: id.Run, Flags: dexfile.AccPublic, CodeOff: id.RunCode}},
	))
	helper.AnnotationsOff = b.Data(AnnotationsDirectory(keepSet, nil, nil, nil))
	b.Class(helper)

	return b.Bytes(), id
}
